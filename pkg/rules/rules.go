package rules

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// A rules template has up to three sections, each introduced by its header
// line. Headers are matched case-insensitively and may appear in any order;
// anything outside a known section is ignored.
var (
	chatModeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	promptSelectionHeader = regexp.MustCompile(`(?i)^#\s*Prompt Selection\s*$`)
	promptInfoHeader      = regexp.MustCompile(`(?i)^#\s*Prompt Information\s*$`)
	promptRulesHeader     = regexp.MustCompile(`(?i)^#\s*Prompt Rules\s*$`)
)

var allowedExtensions = []string{".md", ".txt"}

type TemplateMeta struct {
	DisplayName string `json:"displayName"`
	PromptInfo  string `json:"promptInfo"`
	RulesOnly   string `json:"-"`
	// HasRules distinguishes an empty rules section from no section at all.
	HasRules bool `json:"-"`
}

type Template struct {
	Path    string
	Content string
	Meta    TemplateMeta
}

// RulesText is what goes into the system prompt: the rules section when the
// template declares one, otherwise the whole file.
func (t *Template) RulesText() string {
	if t.Meta.HasRules {
		return t.Meta.RulesOnly
	}
	return t.Content
}

type ModeInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PromptInfo  string `json:"promptInfo"`
}

// Store resolves chat mode ids to rule templates inside a single root
// directory. Mode ids are restricted to a safe character class and resolved
// paths must stay inside the root, so a caller can never escape it.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// ParseTemplateMeta extracts the three recognized sections:
// a single-line display name, a free-text description joined with spaces,
// and the verbatim rules body running to end of file.
func ParseTemplateMeta(content string) TemplateMeta {
	lines := splitLines(content)

	var meta TemplateMeta
	i := 0
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		switch {
		case promptSelectionHeader.MatchString(t):
			i++
			for i < len(lines) {
				next := strings.TrimSpace(lines[i])
				if strings.HasPrefix(next, "#") {
					break
				}
				if next != "" {
					meta.DisplayName = next
					i++
					break
				}
				i++
			}
		case promptInfoHeader.MatchString(t):
			i++
			var parts []string
			for i < len(lines) {
				next := strings.TrimSpace(lines[i])
				if strings.HasPrefix(next, "#") {
					break
				}
				if next != "" {
					parts = append(parts, next)
				}
				i++
			}
			meta.PromptInfo = strings.Join(parts, " ")
		case promptRulesHeader.MatchString(t):
			meta.HasRules = true
			meta.RulesOnly = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return meta
		default:
			i++
		}
	}
	return meta
}

// ListModes scans the root for template files, deduplicates by base name and
// returns them sorted. A file that fails to load is skipped rather than
// failing the whole listing.
func (s *Store) ListModes() []ModeInfo {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}

	names := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, allowed := range allowedExtensions {
			if ext == allowed {
				names[strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))] = struct{}{}
				break
			}
		}
	}

	ids := lo.Keys(names)
	sort.Strings(ids)

	result := make([]ModeInfo, 0, len(ids))
	for _, id := range ids {
		loaded, err := s.Load(id)
		if err != nil {
			continue
		}
		info := ModeInfo{
			ID:          id,
			DisplayName: loaded.Meta.DisplayName,
			PromptInfo:  loaded.Meta.PromptInfo,
		}
		if info.DisplayName == "" {
			info.DisplayName = id
		}
		result = append(result, info)
	}
	return result
}

// ErrNotFound reports an unknown or unloadable chat mode.
type ErrNotFound struct {
	Mode string
}

func (e ErrNotFound) Error() string {
	return "unknown chat mode: " + e.Mode
}

// Load resolves chatMode to a template file under the root. Ids outside the
// safe character class and paths escaping the root are rejected as not found.
func (s *Store) Load(chatMode string) (*Template, error) {
	if chatMode == "" || !chatModeRegex.MatchString(chatMode) {
		return nil, ErrNotFound{Mode: chatMode}
	}

	rootResolved, err := filepath.Abs(s.root)
	if err != nil {
		return nil, ErrNotFound{Mode: chatMode}
	}

	for _, ext := range allowedExtensions {
		candidate := filepath.Join(s.root, chatMode+ext)
		resolved, err := filepath.Abs(candidate)
		if err != nil || !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return nil, ErrNotFound{Mode: chatMode}
		}
		content := string(raw)
		return &Template{
			Path:    resolved,
			Content: content,
			Meta:    ParseTemplateMeta(content),
		}, nil
	}
	return nil, ErrNotFound{Mode: chatMode}
}

func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}
