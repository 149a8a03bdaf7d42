package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/effect/compiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/config"
	"github.com/Carmen-Shannon/oxy-fx/effect/pass"
	"github.com/Carmen-Shannon/oxy-fx/effect/profiler"
	"github.com/Carmen-Shannon/oxy-fx/effect/texture"
	"github.com/Carmen-Shannon/oxy-fx/effect/varstore"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// buildState carries everything shared between the two pipeline generations
// during construction: the parsed preset, the resolved per-pass shader
// sources and properties, and the loaded custom texture table.
type buildState struct {
	props     *config.Properties
	baseDir   string
	passCount uint32
	sources   []string
	passProps []pass.Props
	customs   map[string]*pass.CustomTexture

	// filters[i] is pass i's input filter; rowSrgb[r] marks grid row r as
	// sRGB content. Both carry one trailing default entry.
	filters []bool
	rowSrgb []bool
}

func newBuildState(device gpu.Device, path string) (*buildState, error) {
	props, err := config.ParseFile(path)
	if err != nil {
		return nil, err
	}

	bs := &buildState{
		props:   props,
		baseDir: filepath.Dir(path),
		customs: make(map[string]*pass.CustomTexture),
	}

	if err := bs.loadTextures(device); err != nil {
		bs.release()
		return nil, err
	}
	if err := bs.resolvePasses(); err != nil {
		bs.release()
		return nil, err
	}
	return bs, nil
}

func (bs *buildState) release() {
	for _, ct := range bs.customs {
		if ct.Texture != nil {
			ct.Texture.Release()
		}
	}
	bs.customs = nil
}

func (bs *buildState) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(bs.baseDir, p)
}

// loadTextures reads the semicolon-separated "textures" list and loads each
// named image into a GPU texture. The first occurrence of a duplicated name
// wins.
func (bs *buildState) loadTextures(device gpu.Device) error {
	list, ok := bs.props.Value("textures")
	if !ok {
		return nil
	}

	loader := texture.NewLoader(device)
	for _, name := range strings.Split(list, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := bs.customs[name]; exists {
			continue
		}

		texPath, ok := bs.props.Value(name)
		if !ok {
			return fmt.Errorf("no path specified for texture: %s", name)
		}

		tex, err := loader.LoadTexture(bs.resolve(texPath), name)
		if err != nil {
			return fmt.Errorf("unable to load texture '%s': %w", name, err)
		}

		bs.customs[name] = &pass.CustomTexture{
			Texture: tex,
			Linear:  bs.props.Bool(config.KeyOf(name+"_linear"), true),
		}
	}
	return nil
}

// resolvePasses determines the pass count, locates each pass's shader source,
// and parses its properties.
func (bs *buildState) resolvePasses() error {
	count, present, err := bs.props.Int(config.KeyOf("shaders"))
	switch {
	case err != nil:
		return errors.New("invalid 'shader' value")
	case present:
		if count <= 0 || count > 100 {
			return errors.New("invalid 'shader' value")
		}
		bs.passCount = uint32(count)
	default:
		bs.passCount = bs.props.CountIndexed("shader")
	}
	if bs.passCount == 0 {
		return errors.New("custom shader pipeline contains no passes. There should be at least a shader0= property pointing to a .wgsl file for pass 0.")
	}

	bs.sources = make([]string, bs.passCount)
	bs.passProps = make([]pass.Props, bs.passCount)
	bs.filters = make([]bool, bs.passCount+1)
	bs.rowSrgb = make([]bool, bs.passCount+1)

	for i := uint32(0); i < bs.passCount; i++ {
		raw, ok := bs.props.ValueKey(config.IndexedKey("shader", i))
		if !ok {
			return fmt.Errorf("missing entry 'shader%d'", i)
		}

		src, err := bs.findShaderSource(raw, i)
		if err != nil {
			return err
		}
		bs.sources[i] = src

		pp, err := pass.ParseProps(bs.props, i)
		if err != nil {
			return err
		}
		bs.passProps[i] = pp
		bs.filters[i] = pp.FilterLinear
		bs.rowSrgb[i+1] = pp.SrgbFramebuffer
	}
	return nil
}

// findShaderSource probes for the shader source next to the preset: the
// configured name with its extension swapped for .wgsl first, then the name
// as written.
func (bs *buildState) findShaderSource(raw string, passIndex uint32) (string, error) {
	full := bs.resolve(raw)
	wgsl := strings.TrimSuffix(full, filepath.Ext(full)) + ".wgsl"
	for _, candidate := range []string{wgsl, full} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("pass %d vertex shader: cannot find '%s' or a precompiled version", passIndex, raw)
}

// profileValue resolves the profile setting for one pass of one device
// generation: the per-pass key first, then the generation-wide key.
func (bs *buildState) profileValue(family string, generation, passIndex uint32) (string, bool) {
	if v, ok := bs.props.ValueKey(config.IndexedKey(family+"_", passIndex)); ok {
		return v, true
	}
	return bs.props.ValueKey(config.IndexedKey("shader_profile_d3d", generation))
}

func stageJob(path string, profile compiler.Profile, passIndex uint32) compiler.CompileJob {
	return compiler.CompileJob{
		Path:       path,
		EntryPoint: profile.Stage.EntryPoint(),
		Profile:    profile,
		Tag:        fmt.Sprintf("pass %d %s shader", passIndex, profile.Stage),
	}
}

// ParseCustomEffectModern builds a pipeline for the reflection-driven device
// generation from a preset file. Relative shader and texture paths are
// resolved against the preset's directory.
//
// Parameters:
//   - device: the device executing the pipeline
//   - path: the preset configuration file
//   - opts: optional construction options
//
// Returns:
//   - Pipeline: the ready pipeline
//   - error: an error naming the failing preset entry or pass
func ParseCustomEffectModern(device gpu.ModernDevice, path string, opts ...ParseOption) (Pipeline, error) {
	o := applyParseOptions(opts)
	bs, err := newBuildState(device, path)
	if err != nil {
		return nil, err
	}

	caps := device.Caps()
	jobs := make([]compiler.CompileJob, 0, bs.passCount*2)
	for i := uint32(0); i < bs.passCount; i++ {
		value, ok := bs.profileValue("shader_profile_d3d11", 11, i)
		if !ok {
			value = compiler.DefaultModernProfile(caps)
		}
		vs, err := compiler.ParseModernProfile(compiler.StageVertex, value)
		if err != nil {
			bs.release()
			return nil, err
		}
		ps, err := compiler.ParseModernProfile(compiler.StageFragment, value)
		if err != nil {
			bs.release()
			return nil, err
		}
		jobs = append(jobs, stageJob(bs.sources[i], vs, i), stageJob(bs.sources[i], ps, i))
	}

	blobs, err := compiler.CompileAll(o.comp, jobs, o.compileWorkers)
	if err != nil {
		bs.release()
		return nil, err
	}

	storage := varstore.New()
	passes := make([]pass.Pass, 0, bs.passCount)
	fail := func(err error) (Pipeline, error) {
		for _, built := range passes {
			built.Release()
		}
		bs.release()
		return nil, err
	}

	for i := uint32(0); i < bs.passCount; i++ {
		vsInfo, err := o.comp.Reflect(blobs[2*i])
		if err != nil {
			return fail(fmt.Errorf("pass %d vertex shader: %w", i, err))
		}
		psInfo, err := o.comp.Reflect(blobs[2*i+1])
		if err != nil {
			return fail(fmt.Errorf("pass %d fragment shader: %w", i, err))
		}

		built, err := pass.NewModern(device, pass.ModernConfig{
			Index:          i,
			PassCount:      bs.passCount,
			Props:          bs.passProps[i],
			Storage:        storage,
			Vertex:         blobs[2*i],
			VertexInfo:     vsInfo,
			Fragment:       blobs[2*i+1],
			FragmentInfo:   psInfo,
			CustomTextures: bs.customs,
			InputFilters:   bs.filters,
			RowSrgb:        bs.rowSrgb,
		})
		if err != nil {
			return fail(err)
		}
		passes = append(passes, built)
	}

	return assemble(device, bs, storage, passes, o)
}

// ParseCustomEffectLegacy builds a pipeline for the register-file device
// generation from a preset file. When the preset requests precompilation the
// compiled word streams are written next to the sources; otherwise a valid
// precompiled file substitutes the device word stream for its stage.
//
// Parameters:
//   - device: the device executing the pipeline
//   - path: the preset configuration file
//   - opts: optional construction options
//
// Returns:
//   - Pipeline: the ready pipeline
//   - error: an error naming the failing preset entry or pass
func ParseCustomEffectLegacy(device gpu.LegacyDevice, path string, opts ...ParseOption) (Pipeline, error) {
	o := applyParseOptions(opts)
	bs, err := newBuildState(device, path)
	if err != nil {
		return nil, err
	}

	caps := device.Caps()
	precompile := bs.props.Bool(config.KeyOf("shader_precompile"), false)

	jobs := make([]compiler.CompileJob, 0, bs.passCount*2)
	for i := uint32(0); i < bs.passCount; i++ {
		value, ok := bs.profileValue("shader_profile_d3d9", 9, i)
		if !ok {
			if value, err = compiler.DefaultLegacyProfile(compiler.StageFragment, caps); err != nil {
				bs.release()
				return nil, err
			}
		}
		vs, err := compiler.ParseLegacyProfile(compiler.StageVertex, value)
		if err != nil {
			bs.release()
			return nil, err
		}
		ps, err := compiler.ParseLegacyProfile(compiler.StageFragment, value)
		if err != nil {
			bs.release()
			return nil, err
		}
		if err := pass.ValidateLegacyProfiles(i, vs, ps, caps); err != nil {
			bs.release()
			return nil, err
		}
		jobs = append(jobs, stageJob(bs.sources[i], vs, i), stageJob(bs.sources[i], ps, i))
	}

	blobs, err := compiler.CompileAll(o.comp, jobs, o.compileWorkers)
	if err != nil {
		bs.release()
		return nil, err
	}

	storage := varstore.New()
	passes := make([]pass.Pass, 0, bs.passCount)
	fail := func(err error) (Pipeline, error) {
		for _, built := range passes {
			built.Release()
		}
		bs.release()
		return nil, err
	}

	for i := uint32(0); i < bs.passCount; i++ {
		base := strings.TrimSuffix(bs.sources[i], filepath.Ext(bs.sources[i]))
		if err := handlePrecompiled(blobs[2*i], base+".vs.spv", i, precompile); err != nil {
			return fail(err)
		}
		if err := handlePrecompiled(blobs[2*i+1], base+".ps.spv", i, precompile); err != nil {
			return fail(err)
		}

		vsInfo, err := o.comp.Reflect(blobs[2*i])
		if err != nil {
			return fail(fmt.Errorf("pass %d vertex shader: %w", i, err))
		}
		psInfo, err := o.comp.Reflect(blobs[2*i+1])
		if err != nil {
			return fail(fmt.Errorf("pass %d fragment shader: %w", i, err))
		}

		built, err := pass.NewLegacy(device, pass.LegacyConfig{
			Index:          i,
			PassCount:      bs.passCount,
			Props:          bs.passProps[i],
			Storage:        storage,
			Vertex:         blobs[2*i],
			VertexInfo:     vsInfo,
			Fragment:       blobs[2*i+1],
			FragmentInfo:   psInfo,
			CustomTextures: bs.customs,
			InputFilters:   bs.filters,
			RowSrgb:        bs.rowSrgb,
		})
		if err != nil {
			return fail(err)
		}
		passes = append(passes, built)
	}

	return assemble(device, bs, storage, passes, o)
}

// handlePrecompiled reconciles one compiled stage with its precompiled blob
// file. When precompile is set the fresh words are written out; otherwise an
// existing valid blob replaces the stage's device word stream. Reflection
// always comes from the compiled source.
func handlePrecompiled(blob *compiler.Blob, path string, passIndex uint32, precompile bool) error {
	stage := blob.Profile.Stage

	if precompile {
		if err := compiler.WriteBlobFile(path, blob.Words()); err != nil {
			return fmt.Errorf("pass %d %s shader: unable to write precompiled file: %w", passIndex, stage, err)
		}
		return nil
	}

	words, err := compiler.ReadBlobFile(path)
	switch {
	case err == nil:
		blob.SPIRV = wordsToBytes(words)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case errors.Is(err, compiler.ErrBlobTooLarge), errors.Is(err, compiler.ErrBlobMalformed):
		return fmt.Errorf("pass %d: invalid precompiled %s shader '%s'", passIndex, stage, path)
	default:
		return fmt.Errorf("pass %d %s shader: unable to read precompiled file: %w", passIndex, stage, err)
	}
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// assemble finishes construction once every pass exists: history depths are
// aggregated, per-pass variables resolved, pipeline-owned variables seeded,
// and the timing and stats machinery prepared.
func assemble(device gpu.Device, bs *buildState, storage *varstore.Storage, passes []pass.Pass, o parseOptions) (Pipeline, error) {
	passCount := len(passes)

	depths := make([]uint32, passCount+1)
	for _, built := range passes {
		for row, d := range built.HistoryDepths() {
			if int(row) <= passCount && d > depths[row] {
				depths[row] = d
			}
		}
	}

	// The last pass always runs so its frame-dependent variables stay fresh,
	// even when it would otherwise be cacheable.
	passes[passCount-1].MarkUncacheable()

	for i, built := range passes {
		built.ResetVariables(depths[i+1], bs.filters[i+1])
	}

	if off := storage.Offset(varstore.Address{Kind: varstore.KindModelViewProj}); off >= 0 {
		var identity [16]float32
		common.Identity(identity[:])
		storage.SetMatrix(off, identity)
	}

	// every row plays forward unless the caller drives direction later
	for row := 0; row <= passCount; row++ {
		storage.SetVector(storage.Offset(varstore.Address{
			Kind:      varstore.KindFrameDirection,
			PassIndex: uint32(row),
		}), common.Vec4f{X: 1})
	}

	sourceCounts := make([]int32, depths[0]+1)
	for e := range sourceCounts {
		sourceCounts[e] = storage.ResolveFrameParams(0, uint32(e)).FrameCount
	}

	grid := make([][]pass.OutputSpec, passCount+1)
	grid[0] = make([]pass.OutputSpec, depths[0]+1)
	for i := 1; i <= passCount; i++ {
		grid[i] = make([]pass.OutputSpec, depths[i]+1)
	}

	p := &pipeline{
		device:  device,
		storage: storage,
		passes:  passes,
		fs: pass.FrameState{
			Grid:        grid,
			Invalidated: make([]bool, passCount+1),
		},
		customTextures: bs.customs,
		maxPrevFrames:  depths[0],
		sourceCounts:   sourceCounts,
		sourceLimit:    passes[0].Props().FrameCountLimit,
		sourceLinear:   bs.filters[0],
		infos:          make([]PassInfo, passCount+1),
	}

	if o.profiling || bs.props.Bool(config.KeyOf("shader_show_stats"), false) {
		if t, err := newPassTimings(device, passCount); err == nil {
			p.timing = t
			p.stats = profiler.NewPassStats()
		}
	}

	profiler.LogUnusedSettings(bs.props.UnusedKeys())
	return p, nil
}
