package sshsession

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Mirror pushes local files and directory trees to a remote host. It keeps
// one session for sequential operations; a parallel Push gives every worker
// its own independently opened session, since a single session must not be
// shared across goroutines.
//
// Unlike Session.Upload, Mirror creates missing remote parent directories:
// materializing a tree is its job.
type Mirror struct {
	session     *Session
	config      Config
	retryConfig RetryConfig
	pool        *SessionPool
	usePool     bool
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithRetryConfig sets the retry policy applied around each transfer.
func WithRetryConfig(config RetryConfig) MirrorOption {
	return func(m *Mirror) {
		m.retryConfig = config
	}
}

// WithSessionPool draws the mirror's sequential session from the given pool
// instead of opening a dedicated one.
func WithSessionPool(pool *SessionPool) MirrorOption {
	return func(m *Mirror) {
		m.pool = pool
		m.usePool = true
	}
}

// MirrorOptions configures a push.
type MirrorOptions struct {
	// ExcludePatterns is a list of glob patterns to exclude.
	// Example: []string{"*.tmp", ".git", "node_modules"}
	ExcludePatterns []string

	// SymlinkPolicy specifies how to handle symlinks: "follow" or "skip".
	// Default is "follow".
	SymlinkPolicy string

	// Parallelism is the number of concurrent workers for a tree push, each
	// with its own session. Default is 4.
	Parallelism int

	// DryRun only reports what would be pushed without making changes.
	DryRun bool
}

// WithDefaults returns a copy of the options with default values applied.
func (o MirrorOptions) WithDefaults() MirrorOptions {
	if o.SymlinkPolicy == "" {
		o.SymlinkPolicy = "follow"
	}
	if o.Parallelism == 0 {
		o.Parallelism = 4
	}
	return o
}

// FileResult is the outcome of pushing one file.
type FileResult struct {
	LocalPath  string
	RemotePath string
	Hash       string
	Size       int64
	Pushed     bool
	// Skipped means the remote file already had the expected size.
	Skipped bool
	Error   error
}

// PushResult is the outcome of pushing a tree.
type PushResult struct {
	Files        []FileResult
	TotalSize    int64
	CombinedHash string
	Pushed       int
	Skipped      int
	Errors       int
}

// NewMirror opens the mirror's session eagerly so that connection problems
// surface at construction, like Open does.
func NewMirror(config Config, opts ...MirrorOption) (*Mirror, error) {
	retryConfig := DefaultRetryConfig()
	retryConfig.Logger = config.Logger
	m := &Mirror{
		config:      config,
		retryConfig: retryConfig,
	}

	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.usePool && m.pool != nil {
		m.session, err = m.pool.Get(config)
	} else {
		m.session, err = Open(config)
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Close releases the mirror's session.
func (m *Mirror) Close() error {
	if m.usePool && m.pool != nil {
		m.pool.Release(m.config)
		return nil
	}
	if m.session != nil {
		return m.session.Close()
	}
	return nil
}

// Session returns the mirror's sequential session.
func (m *Mirror) Session() *Session {
	return m.session
}

// PushFile pushes a single file, creating missing remote parents. A file
// whose remote size already matches the local one is skipped.
func (m *Mirror) PushFile(ctx context.Context, localPath, remotePath string, opts *MirrorOptions) (*FileResult, error) {
	var options MirrorOptions
	if opts != nil {
		options = *opts
	}
	options = options.WithDefaults()

	result := &FileResult{
		LocalPath:  localPath,
		RemotePath: remotePath,
	}

	hash, size, err := HashFile(localPath)
	if err != nil {
		result.Error = fmt.Errorf("failed to hash local file: %w", err)
		return result, result.Error
	}
	result.Hash = hash
	result.Size = size

	if options.DryRun {
		result.Pushed = true
		return result, nil
	}

	if unchangedRemote(m.session, remotePath, size) {
		result.Skipped = true
		return result, nil
	}

	err = Retry(ctx, m.retryConfig, "push file", func() error {
		return pushOne(ctx, m.session, localPath, remotePath)
	})
	if err != nil {
		result.Error = err
		return result, err
	}

	result.Pushed = true
	return result, nil
}

// unchangedRemote reports whether the remote file already exists with the
// expected size. A stat failure just means the file gets pushed.
func unchangedRemote(sess *Session, remotePath string, size int64) bool {
	info, err := sess.statRemote(remotePath)
	return err == nil && info.Mode().IsRegular() && info.Size() == size
}

// pushOne creates the remote parent directory and uploads one file over the
// given session.
func pushOne(ctx context.Context, sess *Session, localPath, remotePath string) error {
	remoteDir := path.Dir(remotePath)
	if remoteDir != "" && remoteDir != "/" && remoteDir != "." {
		if err := sess.mkdirRemote(remoteDir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", remoteDir, err)
		}
	}
	return sess.Upload(ctx, localPath, remotePath)
}

// Push pushes a directory tree to the remote host. Files whose remote size
// already matches the local one are skipped.
func (m *Mirror) Push(ctx context.Context, localDir, remoteDir string, opts *MirrorOptions) (*PushResult, error) {
	var options MirrorOptions
	if opts != nil {
		options = *opts
	}
	options = options.WithDefaults()

	result := &PushResult{}

	files, err := ScanTree(localDir, options.ExcludePatterns, options.SymlinkPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	if options.DryRun {
		for _, f := range files {
			result.Files = append(result.Files, FileResult{
				LocalPath:  filepath.Join(localDir, f.RelPath),
				RemotePath: path.Join(remoteDir, filepath.ToSlash(f.RelPath)),
				Hash:       f.Hash,
				Size:       f.Size,
				Pushed:     true,
			})
			result.TotalSize += f.Size
		}
		result.Pushed = len(files)
		result.CombinedHash = CombinedHash(files)
		return result, nil
	}

	type pushJob struct {
		file       FileRecord
		localPath  string
		remotePath string
	}

	jobs := make([]pushJob, 0, len(files))
	for _, file := range files {
		jobs = append(jobs, pushJob{
			file:       file,
			localPath:  filepath.Join(localDir, file.RelPath),
			remotePath: path.Join(remoteDir, filepath.ToSlash(file.RelPath)),
		})
	}

	parallelism := options.Parallelism
	if parallelism > len(jobs) {
		parallelism = len(jobs)
	}
	if parallelism < 1 {
		parallelism = 1
	}

	jobChan := make(chan pushJob, len(jobs))
	resultChan := make(chan FileResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Every worker owns its own transport; a session must never be
			// shared across goroutines.
			sess, err := Open(m.config)
			if err != nil {
				for job := range jobChan {
					resultChan <- FileResult{
						LocalPath:  job.localPath,
						RemotePath: job.remotePath,
						Hash:       job.file.Hash,
						Size:       job.file.Size,
						Error:      err,
					}
				}
				return
			}
			defer sess.Close()

			for job := range jobChan {
				fileResult := FileResult{
					LocalPath:  job.localPath,
					RemotePath: job.remotePath,
					Hash:       job.file.Hash,
					Size:       job.file.Size,
				}

				if ctx.Err() != nil {
					fileResult.Error = ctx.Err()
					resultChan <- fileResult
					continue
				}

				if unchangedRemote(sess, job.remotePath, job.file.Size) {
					fileResult.Skipped = true
					resultChan <- fileResult
					continue
				}

				err := Retry(ctx, m.retryConfig, "push file", func() error {
					return pushOne(ctx, sess, job.localPath, job.remotePath)
				})
				if err != nil {
					fileResult.Error = err
					resultChan <- fileResult
					continue
				}

				fileResult.Pushed = true
				resultChan <- fileResult
			}
		}()
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for r := range resultChan {
		result.Files = append(result.Files, r)
		switch {
		case r.Error != nil:
			result.Errors++
		case r.Skipped:
			result.Skipped++
		default:
			result.Pushed++
			result.TotalSize += r.Size
		}
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].LocalPath < result.Files[j].LocalPath
	})

	result.CombinedHash = CombinedHash(files)
	return result, nil
}

// FileRecord holds information about one scanned file.
type FileRecord struct {
	RelPath string
	Hash    string
	Size    int64
}

// ScanTree walks a directory and returns a sorted manifest of its files.
func ScanTree(root string, excludePatterns []string, symlinkPolicy string) ([]FileRecord, error) {
	if symlinkPolicy == "" {
		symlinkPolicy = "follow"
	}
	if symlinkPolicy != "follow" && symlinkPolicy != "skip" {
		return nil, fmt.Errorf("unknown symlink policy %q", symlinkPolicy)
	}

	var files []FileRecord

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		if shouldExclude(relPath, excludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get info for %s: %w", relPath, err)
		}

		if info.Mode()&os.ModeSymlink != 0 && symlinkPolicy == "skip" {
			return nil
		}

		hash, size, err := HashFile(p)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", relPath, err)
		}

		files = append(files, FileRecord{
			RelPath: relPath,
			Hash:    hash,
			Size:    size,
		})

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, nil
}

func shouldExclude(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}

// HashFile computes the SHA256 hash of a file.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h := sha256.New()
	size, err := io.Copy(h, file)
	if err != nil {
		return "", 0, err
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, nil
}

// CombinedHash computes a single hash over a scanned manifest.
func CombinedHash(files []FileRecord) string {
	h := sha256.New()
	for _, file := range files {
		_, _ = io.WriteString(h, file.RelPath)
		_, _ = io.WriteString(h, ":")
		_, _ = io.WriteString(h, file.Hash)
		_, _ = io.WriteString(h, "\n")
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
