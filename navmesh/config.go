package navmesh

import "math"

// Config aggregates the voxel-unit parameters consumed by the individual
// build stages. Units are voxels (vx) or world units (wu) as noted per field.
// Most callers should derive a Config from an AgentConfig instead of filling
// it in by hand.
type Config struct {
	// Width of the field along the x-axis. [>= 0] [vx]
	Width int
	// Height of the field along the z-axis. [>= 0] [vx]
	Height int
	// Size of the non-navigable border around the heightfield. [>= 0] [vx]
	BorderSize int
	// Cell size on the xz-plane. [> 0] [wu]
	CellSize float32
	// Cell size along the y-axis. [> 0] [wu]
	CellHeight float32
	// The field's AABB. [wu]
	Bounds AABB
	// Maximum walkable slope. [0 <= value < 90] [degrees]
	WalkableSlopeAngle float32
	// Minimum floor-to-ceiling clearance that keeps a floor walkable. [>= 3] [vx]
	WalkableHeight int
	// Maximum traversable ledge height. [>= 0] [vx]
	WalkableClimb int
	// Distance to erode the walkable area away from obstructions. [>= 0] [vx]
	WalkableRadius int
	// Maximum contour edge length along the mesh border; 0 disables
	// subdivision. [>= 0] [vx]
	MaxEdgeLen int
	// Maximum deviation of simplified contour edges from the raw contour. [>= 0] [vx]
	MaxSimplificationError float32
	// Minimum span count of kept island regions. [>= 0] [vx²]
	MinRegionArea int
	// Regions below this span count are merged into neighbors when possible. [>= 0] [vx²]
	MergeRegionArea int
	// Maximum vertices per polygon in the final mesh. [>= 3]
	MaxVertsPerPoly int
	// Detail mesh sampling distance. [0 or >= 0.9] [wu]
	DetailSampleDist float32
	// Maximum deviation of the detail mesh from heightfield data. [>= 0] [wu]
	DetailSampleMaxError float32
	// Contour tessellation switches.
	ContourFlags ContourBuildFlags
	// Convex volumes overriding span area ids before erosion.
	AreaVolumes []ConvexVolume
}

// AgentConfig expresses the build parameters in world units around an
// agent's logical cylinder; Build derives the voxel-unit Config from it.
// Defaults suit a human-sized agent in a meters-scaled world.
type AgentConfig struct {
	CellSize   float32 `yaml:"cell_size"`
	CellHeight float32 `yaml:"cell_height"`
	// The agent cylinder. Pad the height a little: a 1.8 wu tall agent
	// usually wants 2.0 here.
	AgentHeight   float32 `yaml:"agent_height"`
	AgentRadius   float32 `yaml:"agent_radius"`
	AgentMaxClimb float32 `yaml:"agent_max_climb"`
	// Degrees.
	AgentMaxSlope float32 `yaml:"agent_max_slope"`
	// Region thresholds as side lengths in voxels; squared on build.
	RegionMinSize   float32 `yaml:"region_min_size"`
	RegionMergeSize float32 `yaml:"region_merge_size"`
	// Edge limits in voxels.
	EdgeMaxLen   float32 `yaml:"edge_max_len"`
	EdgeMaxError float32 `yaml:"edge_max_error"`
	VertsPerPoly int     `yaml:"verts_per_poly"`
	// Detail sampling in multiples of CellSize / CellHeight.
	DetailSampleDist     float32 `yaml:"detail_sample_dist"`
	DetailSampleMaxError float32 `yaml:"detail_sample_max_error"`

	// Contour tessellation switches; wall edges on by default so EdgeMaxLen
	// takes effect.
	TessellateWallEdges bool `yaml:"tessellate_wall_edges"`
	TessellateAreaEdges bool `yaml:"tessellate_area_edges"`

	AreaVolumes []ConvexVolume `yaml:"-"`
}

// DefaultAgentConfig returns the standard human-sized parameter set.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		CellSize:             0.3,
		CellHeight:           0.2,
		AgentHeight:          2.0,
		AgentRadius:          0.6,
		AgentMaxClimb:        0.9,
		AgentMaxSlope:        45.0,
		RegionMinSize:        8.0,
		RegionMergeSize:      20.0,
		EdgeMaxLen:           12.0,
		EdgeMaxError:         1.3,
		VertsPerPoly:         6,
		DetailSampleDist:     6.0,
		DetailSampleMaxError: 1.0,
		TessellateWallEdges:  true,
	}
}

// Build derives the voxel-unit Config for the given world bounds.
func (a AgentConfig) Build(bounds AABB) Config {
	walkableRadius := int(math.Ceil(float64(a.AgentRadius / a.CellSize)))
	detailSampleDist := float32(0)
	if a.DetailSampleDist >= 0.9 {
		detailSampleDist = a.CellSize * a.DetailSampleDist
	}
	width, height := CalcGridSize(bounds, a.CellSize)
	return Config{
		Width:                  width,
		Height:                 height,
		BorderSize:             0,
		CellSize:               a.CellSize,
		CellHeight:             a.CellHeight,
		Bounds:                 bounds,
		WalkableSlopeAngle:     a.AgentMaxSlope,
		WalkableHeight:         int(math.Ceil(float64(a.AgentHeight / a.CellHeight))),
		WalkableClimb:          int(math.Floor(float64(a.AgentMaxClimb / a.CellHeight))),
		WalkableRadius:         walkableRadius,
		MaxEdgeLen:             int(a.EdgeMaxLen / a.CellSize),
		MaxSimplificationError: a.EdgeMaxError,
		MinRegionArea:          int(a.RegionMinSize * a.RegionMinSize),
		MergeRegionArea:        int(a.RegionMergeSize * a.RegionMergeSize),
		MaxVertsPerPoly:        a.VertsPerPoly,
		DetailSampleDist:       detailSampleDist,
		DetailSampleMaxError:   a.CellHeight * a.DetailSampleMaxError,
		ContourFlags:           a.contourFlags(),
		AreaVolumes:            a.AreaVolumes,
	}
}

func (a AgentConfig) contourFlags() ContourBuildFlags {
	var flags ContourBuildFlags
	if a.TessellateWallEdges {
		flags |= TessellateWallEdges
	}
	if a.TessellateAreaEdges {
		flags |= TessellateAreaEdges
	}
	return flags
}

// CalcGridSize returns the grid dimensions covering bounds at the given cell
// size.
func CalcGridSize(bounds AABB, cellSize float32) (width, height int) {
	width = int((bounds.Max.X()-bounds.Min.X())/cellSize + 0.5)
	height = int((bounds.Max.Z()-bounds.Min.Z())/cellSize + 0.5)
	return width, height
}
