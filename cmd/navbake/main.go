// Command navbake bakes navigation meshes from Wavefront OBJ level geometry.
// One mesh is baked per agent profile in the config file and written as JSON
// next to the input, or into -out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"navbake/navmesh"
	"navbake/objfile"
)

type agentProfile struct {
	Name                string `yaml:"name"`
	navmesh.AgentConfig `yaml:",inline"`
}

type bakeConfig struct {
	Agents []agentProfile `yaml:"agents"`
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML file with agent profiles (default: single built-in profile)")
		outDir     = flag.String("out", "", "output directory (default: alongside the input)")
		logPath    = flag.String("log", "", "also log to this file, with rotation")
		scale      = flag.Float64("scale", 1, "uniform scale applied to input vertices")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] input.obj\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := newLogger(*logPath, *verbose)
	defer logger.Sync()

	if err := run(logger, flag.Arg(0), *configPath, *outDir, float32(*scale)); err != nil {
		logger.Fatal("bake failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, objPath, configPath, outDir string, scale float32) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	mesh, err := objfile.Load(objPath, scale)
	if err != nil {
		return fmt.Errorf("loading geometry: %w", err)
	}
	bounds, ok := mesh.ComputeAABB()
	if !ok {
		return fmt.Errorf("%s contains no vertices", objPath)
	}
	logger.Info("loaded geometry",
		zap.String("file", objPath),
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("triangles", len(mesh.Triangles)))

	inputs := make([]navmesh.BakeInput, len(cfg.Agents))
	for i, agent := range cfg.Agents {
		// Each bake mutates triangle area ids, so every profile gets its own
		// area slice over the shared vertex data.
		m := &navmesh.TriMesh{
			Vertices:  mesh.Vertices,
			Triangles: mesh.Triangles,
			Areas:     make([]uint8, len(mesh.Areas)),
		}
		inputs[i] = navmesh.BakeInput{
			Name:   agent.Name,
			Mesh:   m,
			Config: agent.AgentConfig.Build(bounds),
		}
	}

	results, err := navmesh.BakeAll(context.Background(), logger, inputs)
	if err != nil {
		return err
	}

	if outDir == "" {
		outDir = filepath.Dir(objPath)
	}
	base := strings.TrimSuffix(filepath.Base(objPath), filepath.Ext(objPath))
	for i, res := range results {
		outPath := filepath.Join(outDir, fmt.Sprintf("%s_%s.json", base, cfg.Agents[i].Name))
		if err := writeResult(outPath, res); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		logger.Info("wrote navmesh", zap.String("file", outPath))
	}
	return nil
}

func loadConfig(path string) (*bakeConfig, error) {
	if path == "" {
		return &bakeConfig{Agents: []agentProfile{
			{Name: "default", AgentConfig: navmesh.DefaultAgentConfig()},
		}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &bakeConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("%s defines no agent profiles", path)
	}
	seen := map[string]bool{}
	for i := range cfg.Agents {
		agent := &cfg.Agents[i]
		if agent.Name == "" {
			return nil, fmt.Errorf("%s: agent %d has no name", path, i)
		}
		if seen[agent.Name] {
			return nil, fmt.Errorf("%s: duplicate agent name %q", path, agent.Name)
		}
		seen[agent.Name] = true
		if agent.CellSize <= 0 || agent.CellHeight <= 0 {
			return nil, fmt.Errorf("%s: agent %q needs positive cell_size and cell_height", path, agent.Name)
		}
		if agent.VertsPerPoly < 3 {
			return nil, fmt.Errorf("%s: agent %q needs verts_per_poly >= 3", path, agent.Name)
		}
	}
	return cfg, nil
}

// polyJSON is one polygon of the output: its vertex indices and, edge for
// edge, the index of the neighbor polygon or -1 on boundary edges.
type polyJSON struct {
	Verts     []int  `json:"verts"`
	Neighbors []int  `json:"neighbors"`
	Region    uint16 `json:"region"`
	Area      uint8  `json:"area"`
}

type detailMeshJSON struct {
	VertBase  int `json:"vertBase"`
	VertCount int `json:"vertCount"`
	TriBase   int `json:"triBase"`
	TriCount  int `json:"triCount"`
}

type resultJSON struct {
	CellSize    float32          `json:"cellSize"`
	CellHeight  float32          `json:"cellHeight"`
	BoundsMin   [3]float32       `json:"boundsMin"`
	BoundsMax   [3]float32       `json:"boundsMax"`
	Verts       [][3]float32     `json:"verts"`
	Polys       []polyJSON       `json:"polys"`
	DetailMesh  []detailMeshJSON `json:"detailMeshes"`
	DetailVerts [][3]float32     `json:"detailVerts"`
	DetailTris  [][4]int         `json:"detailTris"`
}

func writeResult(path string, res *navmesh.BakeResult) error {
	pm := res.PolyMesh
	out := resultJSON{
		CellSize:   pm.CellSize,
		CellHeight: pm.CellHeight,
		BoundsMin:  pm.Bounds.Min,
		BoundsMax:  pm.Bounds.Max,
	}

	// Vertices go out in world units.
	out.Verts = make([][3]float32, len(pm.Verts))
	for i, v := range pm.Verts {
		out.Verts[i] = [3]float32{
			pm.Bounds.Min.X() + float32(v[0])*pm.CellSize,
			pm.Bounds.Min.Y() + float32(v[1])*pm.CellHeight,
			pm.Bounds.Min.Z() + float32(v[2])*pm.CellSize,
		}
	}

	for i := 0; i < pm.NumPolys(); i++ {
		verts, neis := pm.Poly(i)
		p := polyJSON{Region: uint16(pm.Regs[i]), Area: pm.Areas[i]}
		for j, v := range verts {
			if v == navmesh.MeshNullIndex {
				break
			}
			p.Verts = append(p.Verts, int(v))
			switch {
			case neis[j] == navmesh.MeshNullIndex:
				p.Neighbors = append(p.Neighbors, -1)
			case neis[j]&navmesh.PortalFlag != 0:
				p.Neighbors = append(p.Neighbors, -1)
			default:
				p.Neighbors = append(p.Neighbors, int(neis[j]))
			}
		}
		out.Polys = append(out.Polys, p)
	}

	dm := res.DetailMesh
	out.DetailMesh = make([]detailMeshJSON, len(dm.Meshes))
	for i, sub := range dm.Meshes {
		out.DetailMesh[i] = detailMeshJSON{
			VertBase:  sub.VertBase,
			VertCount: sub.VertCount,
			TriBase:   sub.TriBase,
			TriCount:  sub.TriCount,
		}
	}
	out.DetailVerts = make([][3]float32, len(dm.Verts))
	for i, v := range dm.Verts {
		out.DetailVerts[i] = [3]float32{v.X(), v.Y(), v.Z()}
	}
	out.DetailTris = dm.Tris

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func newLogger(logPath string, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if logPath != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    16, // MB
			MaxBackups: 4,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, level))
	}
	return zap.New(zapcore.NewTee(cores...))
}
