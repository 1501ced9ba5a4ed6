package docpress

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Environment variables checked, in order, before asking version control
// for the current revision.
var revisionEnvVars = []string{"DOCPRESS_COMMIT", "CI_COMMIT_SHORT_SHA"}

// Author identifies a contributor found in version history.
type Author struct {
	Name  string
	Email string
}

// RevisionProvider answers provenance queries about source files.
// Implementations are best-effort: when version control is unavailable
// they degrade to filesystem-based equivalents instead of failing.
type RevisionProvider interface {
	// BlobHash returns a content-addressable identity for the file.
	BlobHash(path string) (string, error)
	// Authors lists contributors to the file; an empty slice when the
	// history is unavailable.
	Authors(path string) ([]Author, error)
	// ModifiedDate returns the last modification date as YYYY-MM-DD.
	ModifiedDate(path string) (string, error)
	// Revision returns a short revision id for the working tree, with a
	// "-dirty" suffix when it has uncommitted changes. ok is false when
	// no revision can be determined.
	Revision() (id string, ok bool)
	// ChangedFiles lists absolute paths of files touched in the given
	// revision.
	ChangedFiles(rev string) ([]string, error)
}

// ResolveRevision returns the revision id to embed in rendered documents:
// an environment override when set, otherwise the provider's answer, or
// the empty string when neither is available.
func ResolveRevision(rev RevisionProvider) string {
	for _, name := range revisionEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	if id, ok := rev.Revision(); ok {
		return id
	}
	return ""
}

// CommandRunner abstracts command execution to enable testing without real
// subprocesses.
type CommandRunner interface {
	Run(name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(name string, args ...string) (string, string, error) {
	cmd := exec.Command(name, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("starting command: %w", err)
	}

	stderrContent, err := io.ReadAll(stderrPipe)
	if err != nil {
		return "", "", fmt.Errorf("reading stderr: %w", err)
	}

	err = cmd.Wait()
	return stdout.String(), string(stderrContent), err
}

// NewRevisionProvider selects a provider at startup: git-backed when the
// working directory is inside a git work tree, filesystem-backed otherwise.
func NewRevisionProvider() RevisionProvider {
	git := &GitRevisions{Runner: &ExecRunner{}, fallback: FSRevisions{}}
	if _, _, err := git.Runner.Run("git", "rev-parse", "--is-inside-work-tree"); err != nil {
		return FSRevisions{}
	}
	return git
}

// GitRevisions answers provenance queries by shelling out to git.
// Individual query failures (e.g. an untracked file) fall back to the
// filesystem provider rather than aborting the build.
type GitRevisions struct {
	Runner   CommandRunner
	fallback FSRevisions
}

func (g *GitRevisions) BlobHash(path string) (string, error) {
	out, _, err := g.Runner.Run("git", "hash-object", path)
	if err != nil {
		return g.fallback.BlobHash(path)
	}
	return strings.TrimSpace(out), nil
}

func (g *GitRevisions) Authors(path string) ([]Author, error) {
	out, _, err := g.Runner.Run("git", "shortlog", "-sne", "HEAD", "--", path)
	if err != nil {
		return nil, nil
	}
	return parseShortlog(out), nil
}

// parseShortlog extracts authors from `git shortlog -sne` output, whose
// lines look like "    12\tJane Doe <jane@example.com>".
func parseShortlog(out string) []Author {
	var authors []Author
	for _, line := range strings.Split(out, "\n") {
		_, entry, found := strings.Cut(line, "\t")
		if !found {
			continue
		}
		entry = strings.TrimSpace(entry)
		open := strings.LastIndex(entry, " <")
		if open < 0 || !strings.HasSuffix(entry, ">") {
			continue
		}
		authors = append(authors, Author{
			Name:  strings.TrimSpace(entry[:open]),
			Email: entry[open+2 : len(entry)-1],
		})
	}
	return authors
}

func (g *GitRevisions) ModifiedDate(path string) (string, error) {
	out, _, err := g.Runner.Run("git", "log", "-1", "--pretty=%cs", "--", path)
	date := strings.TrimSpace(out)
	if err != nil || date == "" {
		return g.fallback.ModifiedDate(path)
	}
	return date, nil
}

func (g *GitRevisions) Revision() (string, bool) {
	out, _, err := g.Runner.Run("git", "rev-parse", "HEAD")
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(out)
	if len(id) > 8 {
		id = id[:8]
	}
	if status, _, statusErr := g.Runner.Run("git", "status", "-s"); statusErr == nil && strings.TrimSpace(status) != "" {
		id += "-dirty"
	}
	return id, true
}

func (g *GitRevisions) ChangedFiles(rev string) ([]string, error) {
	rev = strings.TrimSuffix(rev, "-dirty")
	out, stderr, err := g.Runner.Run("git", "diff-tree", "--no-commit-id", "--name-only", "-r", rev)
	if err != nil {
		return nil, fmt.Errorf("listing files changed in %q: %s: %w", rev, strings.TrimSpace(stderr), err)
	}
	// diff-tree paths are relative to the repository root.
	root := ""
	if top, _, topErr := g.Runner.Run("git", "rev-parse", "--show-toplevel"); topErr == nil {
		root = strings.TrimSpace(top)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if root != "" {
			line = filepath.Join(root, line)
		}
		abs, absErr := filepath.Abs(line)
		if absErr != nil {
			continue
		}
		files = append(files, abs)
	}
	sort.Strings(files)
	return files, nil
}

// FSRevisions answers provenance queries from the filesystem alone.
type FSRevisions struct{}

// BlobHash hashes the file the way git hashes blobs, so identities stay
// comparable when some files come from the git provider and some do not.
func (FSRevisions) BlobHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (FSRevisions) Authors(string) ([]Author, error) {
	return nil, nil
}

func (FSRevisions) ModifiedDate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime().Format(time.DateOnly), nil
}

func (FSRevisions) Revision() (string, bool) {
	return "", false
}

func (FSRevisions) ChangedFiles(rev string) ([]string, error) {
	return nil, fmt.Errorf("listing files changed in %q: version control unavailable", rev)
}

// Compile-time interface checks.
var (
	_ RevisionProvider = (*GitRevisions)(nil)
	_ RevisionProvider = FSRevisions{}
)
