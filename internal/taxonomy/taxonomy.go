package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/calyptra/intelgraph/internal/record"
)

// SubType is one declared sub-type tag under a kind.
type SubType struct {
	Tag         string
	Description string
}

// Taxonomy holds the declared sub-type tags per kind, loaded from CUE
// declarations. The core never enforces it; it exists so tooling can
// warn on tags nobody declared.
type Taxonomy struct {
	byKind    map[record.Kind]map[string]SubType
	fileCount int
}

// LoadError reports a failure while loading taxonomy declarations.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants.
const (
	ErrCodeNotFound    = "T001" // Path not found or not a directory
	ErrCodeNoFiles     = "T002" // No CUE files found
	ErrCodeLoadFailed  = "T003" // CUE load failed
	ErrCodeBuildFailed = "T004" // CUE build failed
	ErrCodeBadKind     = "T005" // Unknown kind tag in declarations
)

// Load reads every CUE file under dir and extracts the `taxonomy`
// struct: a mapping from kind tag to sub-type declarations, e.g.
//
//	taxonomy: attribute: ip: description: "IPv4 or IPv6 address"
//
// Unknown kind tags fail; empty declarations are fine.
func Load(dir string) (*Taxonomy, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("taxonomy directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing taxonomy directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	t := &Taxonomy{
		byKind:    make(map[record.Kind]map[string]SubType),
		fileCount: len(cueFiles),
	}

	taxVal := value.LookupPath(cue.ParsePath("taxonomy"))
	if !taxVal.Exists() {
		return t, nil
	}
	kinds, err := taxVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating kinds: %v", err)}
	}
	for kinds.Next() {
		kind, err := record.DecodeKind(kinds.Label())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadKind, Message: fmt.Sprintf("taxonomy.%s: %v", kinds.Label(), err)}
		}
		tags, err := kinds.Value().Fields()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating taxonomy.%s: %v", kinds.Label(), err)}
		}
		byTag := make(map[string]SubType)
		for tags.Next() {
			st := SubType{Tag: tags.Label()}
			if desc := tags.Value().LookupPath(cue.ParsePath("description")); desc.Exists() {
				if s, err := desc.String(); err == nil {
					st.Description = s
				}
			}
			byTag[st.Tag] = st
		}
		t.byKind[kind] = byTag
	}
	return t, nil
}

// Known reports whether the tag is declared for the kind. An undeclared
// kind knows no tags.
func (t *Taxonomy) Known(kind record.Kind, tag string) bool {
	_, ok := t.byKind[kind][tag]
	return ok
}

// Tags returns the declared tags for a kind in sorted order.
func (t *Taxonomy) Tags(kind record.Kind) []string {
	byTag := t.byKind[kind]
	out := make([]string, 0, len(byTag))
	for tag := range byTag {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Describe returns the declaration for a tag, if any.
func (t *Taxonomy) Describe(kind record.Kind, tag string) (SubType, bool) {
	st, ok := t.byKind[kind][tag]
	return st, ok
}

// FileCount returns how many CUE files contributed declarations.
func (t *Taxonomy) FileCount() int {
	return t.fileCount
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
