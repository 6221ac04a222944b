package navmesh

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BakeResult is the output of one bake: the convex polygon mesh and its
// height detail.
type BakeResult struct {
	PolyMesh   *PolyMesh
	DetailMesh *PolyMeshDetail
}

// BakeInput is one independent bake job for BakeAll.
type BakeInput struct {
	Name   string
	Mesh   *TriMesh
	Config Config
}

// Bake runs the whole pipeline over one triangle soup: rasterization,
// span filtering, compaction, area marking and erosion, watershed region
// partitioning, contour tracing and the two mesh builds. The input mesh's
// area ids are overwritten by the slope test. logger may be nil.
func Bake(logger *zap.Logger, mesh *TriMesh, cfg Config) (*BakeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mesh.MarkWalkableTriangles(cfg.WalkableSlopeAngle)

	hf, err := NewHeightfield(cfg.Bounds, cfg.CellSize, cfg.CellHeight)
	if err != nil {
		return nil, fmt.Errorf("creating heightfield: %w", err)
	}
	if err := hf.RasterizeTriangles(mesh, cfg.WalkableClimb); err != nil {
		return nil, fmt.Errorf("rasterizing %d triangles: %w", len(mesh.Triangles), err)
	}
	logger.Debug("rasterized triangles",
		zap.Int("triangles", len(mesh.Triangles)),
		zap.Int("width", hf.Width),
		zap.Int("height", hf.Height),
		zap.Int("spans", hf.SpanCount()))

	hf.FilterLowHangingWalkableObstacles(cfg.WalkableClimb)
	hf.FilterLedgeSpans(cfg.WalkableHeight, cfg.WalkableClimb)
	hf.FilterWalkableLowHeightSpans(cfg.WalkableHeight)

	chf, err := BuildCompactHeightfield(cfg.WalkableHeight, cfg.WalkableClimb, hf)
	if err != nil {
		return nil, fmt.Errorf("compacting heightfield: %w", err)
	}
	logger.Debug("compacted heightfield", zap.Int("spans", chf.SpanCount))

	for _, volume := range cfg.AreaVolumes {
		chf.MarkConvexPolyArea(volume)
	}
	chf.ErodeWalkableArea(cfg.WalkableRadius)

	chf.BuildDistanceField()
	if err := chf.BuildRegions(logger, cfg.BorderSize, cfg.MinRegionArea, cfg.MergeRegionArea); err != nil {
		return nil, fmt.Errorf("building regions: %w", err)
	}
	logger.Debug("built regions",
		zap.Uint16("maxDistance", chf.MaxDistance),
		zap.Uint16("regions", uint16(chf.MaxRegions)))

	cset := chf.BuildContours(logger, cfg.MaxSimplificationError, cfg.MaxEdgeLen, cfg.ContourFlags)
	logger.Debug("traced contours", zap.Int("contours", len(cset.Contours)))

	pmesh, err := BuildPolyMesh(logger, cset, cfg.MaxVertsPerPoly)
	if err != nil {
		return nil, fmt.Errorf("building polygon mesh: %w", err)
	}

	dmesh, err := BuildPolyMeshDetail(logger, pmesh, chf, cfg.DetailSampleDist, cfg.DetailSampleMaxError)
	if err != nil {
		return nil, fmt.Errorf("building detail mesh: %w", err)
	}
	logger.Info("bake complete",
		zap.Int("polygons", pmesh.NumPolys()),
		zap.Int("vertices", len(pmesh.Verts)),
		zap.Int("detailTris", len(dmesh.Tris)))

	return &BakeResult{PolyMesh: pmesh, DetailMesh: dmesh}, nil
}

// BakeAll runs independent bakes concurrently, one goroutine per input.
// Results line up with inputs by index. The first failure cancels the rest.
func BakeAll(ctx context.Context, logger *zap.Logger, inputs []BakeInput) ([]*BakeResult, error) {
	results := make([]*BakeResult, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in := inputs[i]
			var jobLogger *zap.Logger
			if logger != nil {
				jobLogger = logger.With(zap.String("bake", in.Name))
			}
			res, err := Bake(jobLogger, in.Mesh, in.Config)
			if err != nil {
				return fmt.Errorf("bake %q: %w", in.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
