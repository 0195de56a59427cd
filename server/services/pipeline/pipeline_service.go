package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services/pipeline/parser"
)

const (
	DefaultMaxJobsPerFile    = 500
	DefaultMaxCommandsPerJob = 100
)

// PipelinePaths lists pipeline files, or directories containing pipeline files.
type PipelinePaths []string

type PipelineConfig struct {
	// Paths to load. Relative paths are relative to WorkDir. If empty, the default pipeline file in
	// WorkDir is loaded.
	Paths   PipelinePaths
	WorkDir string
	Limits  parser.ParserLimits
}

func NewDefaultPipelineConfig(workDir string) PipelineConfig {
	return PipelineConfig{
		WorkDir: workDir,
		Limits: parser.ParserLimits{
			MaxJobsPerFile:    DefaultMaxJobsPerFile,
			MaxCommandsPerJob: DefaultMaxCommandsPerJob,
		},
	}
}

type PipelineService struct {
	config PipelineConfig
	parser *parser.PipelineParser
	logger.Log

	mu      sync.RWMutex
	current *dto.Pipeline
}

func NewPipelineService(config PipelineConfig, logFactory logger.LogFactory) *PipelineService {
	return &PipelineService{
		config: config,
		parser: parser.NewPipelineParser(config.Limits),
		Log:    logFactory("PipelineService"),
	}
}

// Load parses every configured pipeline file (directories are searched for files with a known
// extension), validates the jobs, resolves every dependency link and rejects cycles.
// The loaded pipeline replaces the current one.
func (s *PipelineService) Load(ctx context.Context) (*dto.Pipeline, error) {
	files, err := s.findFiles()
	if err != nil {
		return nil, err
	}
	var jobs []*models.BuildJob
	for _, file := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fileJobs, err := s.parseFile(file)
		if err != nil {
			return nil, err
		}
		s.Tracef("Parsed %d job(s) from %s", len(fileJobs), file)
		jobs = append(jobs, fileJobs...)
	}
	pipeline, err := dto.NewPipeline(files, jobs)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = pipeline
	s.mu.Unlock()
	s.Infof("Loaded pipeline with %d job(s) from %d file(s)", pipeline.Len(), len(files))
	return pipeline, nil
}

// Current returns the most recently loaded pipeline, loading it first if necessary.
func (s *PipelineService) Current(ctx context.Context) (*dto.Pipeline, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current != nil {
		return current, nil
	}
	return s.Load(ctx)
}

// Fingerprint computes the fingerprint of a job evaluated with the specified effective params.
// The file a job was declared in and its display name and description do not contribute.
func (s *PipelineService) Fingerprint(job *models.BuildJob, params models.Params) (string, models.HashType, error) {
	hash, err := hashstructure.Hash(struct {
		Job    *models.BuildJob
		Params models.Params
	}{
		Job:    job,
		Params: params,
	}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", "", errors.Wrapf(err, "error fingerprinting job %q", job.ID)
	}
	return fmt.Sprintf("%016x", hash), models.HashTypeFNV, nil
}

func (s *PipelineService) parseFile(file string) ([]*models.BuildJob, error) {
	configType := models.ConfigTypeForPath(file)
	if !configType.Valid() {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Unsupported pipeline file type: %s", file))
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound(fmt.Sprintf("Pipeline file not found: %s", file)).Wrap(err)
		}
		return nil, errors.Wrapf(err, "error reading pipeline file %s", file)
	}
	jobs, err := s.parser.Parse(file, data, configType)
	if err != nil {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Invalid pipeline file %s", file)).Wrap(err)
	}
	return jobs, nil
}

// findFiles expands the configured paths into the sorted list of pipeline files to load.
// Directories are searched one level deep; files with unknown extensions in them are skipped.
func (s *PipelineService) findFiles() ([]string, error) {
	paths := s.config.Paths
	if len(paths) == 0 {
		paths = PipelinePaths{models.DefaultPipelineFileName}
	}
	seen := make(map[string]bool)
	var files []string
	add := func(file string) {
		if !seen[file] {
			seen[file] = true
			files = append(files, file)
		}
	}
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.config.WorkDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, gerror.NewErrNotFound(fmt.Sprintf("Pipeline path not found: %s", path)).Wrap(err)
			}
			return nil, errors.Wrapf(err, "error reading pipeline path %s", path)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing pipeline directory %s", path)
		}
		var found []string
		for _, entry := range entries {
			if entry.IsDir() || !models.ConfigTypeForPath(entry.Name()).Valid() {
				continue
			}
			found = append(found, filepath.Join(path, entry.Name()))
		}
		if len(found) == 0 {
			return nil, gerror.NewErrNotFound(fmt.Sprintf("No pipeline files found in %s", path))
		}
		sort.Strings(found)
		for _, file := range found {
			add(file)
		}
	}
	return files, nil
}
