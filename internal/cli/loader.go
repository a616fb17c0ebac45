package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/ruilorenzetti/hibernate-shards/internal/compiler"
	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
	"github.com/ruilorenzetti/hibernate-shards/internal/store"
)

// Error code constants, shared by every command.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeCompile      = "E010" // Config does not compile
	ErrCodeUnknownQuery = "E011" // Query name not in config
	ErrCodeShard        = "E301" // One or more shards failed
	ErrCodeCatalog      = "E302" // Plan catalog missing or unreadable
	ErrCodeScenario     = "E401" // Scenario suite could not run
)

// LoadResult is a compiled configuration and where it came from.
type LoadResult struct {
	Config *compiler.Config
	Dir    string // Shard paths resolve against this directory
	Files  int
}

// LoadError is a config loading failure.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadConfig loads and compiles a CUE configuration. path is a single .cue
// file or a directory holding one CUE package.
func LoadConfig(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	ctx := cuecontext.New()
	result := &LoadResult{Dir: path}
	var value cue.Value

	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		result.Files = len(files)

		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if inst := instances[0]; inst.Err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading config: %v", err)}
		}
		result.Dir = filepath.Dir(path)
		result.Files = 1
		value = ctx.CompileBytes(data, cue.Filename(path))
	}

	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	cfg, err := compiler.CompileConfig(value)
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			return nil, &LoadError{Code: ErrCodeCompile, Message: ce.Field + ": " + ce.Message, Pos: ce.Pos}
		}
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
	}
	result.Config = cfg
	return result, nil
}

// FindCUEFiles returns the .cue files directly inside dir. Subdirectories
// are separate CUE packages and are not loaded.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// loadFailure maps a LoadConfig error to command output and exit code.
func loadFailure(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		le = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	var details any
	if le.Pos.IsValid() {
		details = map[string]any{"file": le.Pos.Filename(), "line": le.Pos.Line(), "column": le.Pos.Column()}
	}
	if outErr := f.Error(le.Code, le.Error(), details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "load config", err)
}

// openShards opens the database of every configured shard. Relative paths
// resolve against the config directory. The returned func closes every opened store.
func openShards(res *LoadResult, opts *RootOptions) ([]shard.Shard, func(), error) {
	var opened []*store.Store
	closeAll := func() {
		for _, st := range opened {
			if err := st.Close(); err != nil {
				opts.Logger.Error("error closing shard database", "error", err)
			}
		}
	}

	shards := make([]shard.Shard, 0, len(res.Config.Shards))
	for _, sc := range res.Config.Shards {
		if sc.Path == "" {
			closeAll()
			return nil, nil, fmt.Errorf("shard %s has no path", sc.ID)
		}
		path := sc.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(res.Dir, path)
		}
		st, err := store.OpenShard(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("shard %s: %w", sc.ID, err)
		}
		opts.Logger.Debug("shard opened", "shard", sc.ID, "path", path)
		opened = append(opened, st)
		shards = append(shards, shard.Shard{ID: sc.ID, Store: st})
	}
	return shards, closeAll, nil
}

// planShards lists the configured shards without opening any database.
func planShards(res *LoadResult) []shard.Shard {
	shards := make([]shard.Shard, len(res.Config.Shards))
	for i, sc := range res.Config.Shards {
		shards[i] = shard.Shard{ID: sc.ID}
	}
	return shards
}

func newCoordinator(res *LoadResult, shards []shard.Shard, opts *RootOptions) (*shard.Coordinator, error) {
	copts := []shard.Option{
		shard.WithParallelism(opts.Parallelism),
		shard.WithLogger(opts.Logger),
	}
	if opts.IDs != nil {
		copts = append(copts, shard.WithIDGenerator(opts.IDs))
	}
	return shard.NewCoordinator(res.Config.Registry, shards, copts...)
}

// openCatalog opens the plan catalog named by --catalog or SHARDQ_CATALOG.
func openCatalog(opts *RootOptions) (*store.Store, error) {
	if opts.Catalog == "" {
		return nil, fmt.Errorf("no plan catalog: set --catalog or SHARDQ_CATALOG")
	}
	st, err := store.Open(opts.Catalog)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", opts.Catalog, err)
	}
	return st, nil
}
