// Package history reads the revisions of files tracked in a git repository.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrNoRepository is returned when no git repository contains the path.
	ErrNoRepository = errors.New("not a git repository")

	// ErrEmptyRepository is returned when the repository has no commits.
	ErrEmptyRepository = errors.New("repository has no commits")

	// ErrFileNotTracked is returned when a path is not tracked at HEAD.
	ErrFileNotTracked = errors.New("file not tracked at HEAD")
)

// Revision is one version of a file, as committed.
type Revision struct {
	Hash           string    `json:"hash"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	AuthorTime     time.Time `json:"author_time"`
	CommitterName  string    `json:"committer_name"`
	CommitterEmail string    `json:"committer_email"`
	CommitterTime  time.Time `json:"committer_time"`

	// Path is the file's path in this commit.
	Path string `json:"path"`

	// Text is the decoded file content. Empty when the commit removed the file.
	Text string `json:"-"`
}

// Listing is the set of files tracked at HEAD.
type Listing struct {
	// Files can be analyzed, sorted.
	Files []string

	// Skipped are binary or excluded by extension, sorted.
	Skipped []string
}

// Repository is an opened git repository pinned to its HEAD commit.
type Repository struct {
	repo *git.Repository
	head *object.Commit
}

// Open opens the repository containing dir, searching parent directories for
// the .git directory, pinned to its current HEAD.
func Open(dir string) (*Repository, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return nil, err
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrEmptyRepository
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	return pin(repo, ref.Hash())
}

// OpenAt opens the repository containing dir pinned to the commit head. Each
// handle is used by one goroutine at a time; concurrent workers open their own.
func OpenAt(dir, head string) (*Repository, error) {
	repo, err := openRepo(dir)
	if err != nil {
		return nil, err
	}
	hash := plumbing.NewHash(head)
	if hash.IsZero() || hash.String() != strings.ToLower(head) {
		return nil, fmt.Errorf("invalid commit hash %q", head)
	}
	return pin(repo, hash)
}

func openRepo(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNoRepository, dir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

func pin(repo *git.Repository, hash plumbing.Hash) (*Repository, error) {
	head, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return &Repository{repo: repo, head: head}, nil
}

// Head returns the hash of the HEAD commit.
func (r *Repository) Head() string {
	return r.head.Hash.String()
}

// Files lists the regular files tracked at HEAD. Binary files and files whose
// extension appears in exclude are reported as skipped.
func (r *Repository) Files(ctx context.Context, exclude []string) (*Listing, error) {
	iter, err := r.head.Files()
	if err != nil {
		return nil, fmt.Errorf("list HEAD tree: %w", err)
	}
	defer iter.Close()

	listing := &Listing{}
	err = iter.ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Mode != filemode.Regular && f.Mode != filemode.Executable {
			return nil
		}
		if Excluded(f.Name, exclude) {
			listing.Skipped = append(listing.Skipped, f.Name)
			return nil
		}
		binary, err := f.IsBinary()
		if err != nil {
			return fmt.Errorf("inspect %s: %w", f.Name, err)
		}
		if binary {
			listing.Skipped = append(listing.Skipped, f.Name)
			return nil
		}
		listing.Files = append(listing.Files, f.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(listing.Files)
	sort.Strings(listing.Skipped)
	return listing, nil
}

// Excluded reports whether name's extension is in exts. The extension is the
// text after the last dot, or the whole base name when there is no dot.
// Matching ignores case.
func Excluded(name string, exts []string) bool {
	base := path.Base(name)
	ext := base
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		ext = base[i+1:]
	}
	for _, e := range exts {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}

// Tracked reports whether file is tracked at HEAD.
func (r *Repository) Tracked(file string) bool {
	_, err := r.head.File(file)
	return err == nil
}

// FileHistory returns every revision of file reachable from HEAD, oldest
// first. Only commits that changed the file are included, each once. Renames
// are followed: each revision's Path is the name the file had in that commit.
func (r *Repository) FileHistory(ctx context.Context, file string) ([]Revision, error) {
	if !r.Tracked(file) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotTracked, file)
	}

	iter, err := r.repo.Log(&git.LogOptions{
		From:  r.head.Hash,
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", file, err)
	}
	defer iter.Close()

	type touch struct {
		commit *object.Commit
		path   string
	}
	var touches []touch
	cur := file
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		prev, changed, err := changedPath(ctx, c, cur)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s at %s: %w", cur, c.Hash, err)
		}
		if !changed {
			return nil
		}
		touches = append(touches, touch{commit: c, path: cur})
		if prev != "" {
			cur = prev
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	revisions := make([]Revision, 0, len(touches))
	for i := len(touches) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, name := touches[i].commit, touches[i].path
		text, err := fileText(c, name)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", name, c.Hash, err)
		}
		revisions = append(revisions, Revision{
			Hash:           c.Hash.String(),
			AuthorName:     c.Author.Name,
			AuthorEmail:    c.Author.Email,
			AuthorTime:     c.Author.When,
			CommitterName:  c.Committer.Name,
			CommitterEmail: c.Committer.Email,
			CommitterTime:  c.Committer.When,
			Path:           name,
			Text:           text,
		})
	}
	return revisions, nil
}

// changedPath reports whether commit c changed the file at name. A commit
// whose content and name match any parent's is unchanged. When the first
// parent held the file under another name, prev is that name.
func changedPath(ctx context.Context, c *object.Commit, name string) (prev string, changed bool, err error) {
	tree, err := c.Tree()
	if err != nil {
		return "", false, err
	}
	blob, err := blobAt(tree, name)
	if err != nil {
		return "", false, err
	}
	if c.NumParents() == 0 {
		return "", !blob.IsZero(), nil
	}

	for i := 0; i < c.NumParents(); i++ {
		parent, err := c.Parent(i)
		if err != nil {
			return "", false, err
		}
		ptree, err := parent.Tree()
		if err != nil {
			return "", false, err
		}
		pname := name
		pblob, err := blobAt(ptree, name)
		if err != nil {
			return "", false, err
		}
		if pblob.IsZero() && !blob.IsZero() {
			from, err := renameSource(ctx, ptree, tree, name)
			if err != nil {
				return "", false, err
			}
			if from != "" {
				pname = from
				if pblob, err = blobAt(ptree, from); err != nil {
					return "", false, err
				}
			}
		}
		if pname == name && pblob == blob {
			return "", false, nil
		}
		if i == 0 && pname != name {
			prev = pname
		}
	}
	return prev, true, nil
}

// blobAt returns the blob hash of the file at name in tree, or the zero hash
// when tree has no file there.
func blobAt(tree *object.Tree, name string) (plumbing.Hash, error) {
	entry, err := tree.FindEntry(name)
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, err
	}
	if !entry.Mode.IsFile() {
		return plumbing.ZeroHash, nil
	}
	return entry.Hash, nil
}

// renameSource returns the name that was renamed to name between the trees
// from and to, or "" when name was newly added.
func renameSource(ctx context.Context, from, to *object.Tree, name string) (string, error) {
	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", err
	}
	for _, ch := range changes {
		if ch.To.Name == name && ch.From.Name != "" && ch.From.Name != name {
			return ch.From.Name, nil
		}
	}
	return "", nil
}

// fileText returns the decoded content of file at commit c, or "" when the
// file does not exist there.
func fileText(c *object.Commit, file string) (string, error) {
	f, err := c.File(file)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", err
	}
	rd, err := f.Reader()
	if err != nil {
		return "", err
	}
	defer rd.Close()

	b, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return Decode(b)
}
