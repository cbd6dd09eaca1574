package extractor

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/utils"
)

type chapterNode struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	ChildNodes []chapterNode `json:"child_nodes"`
}

// chapterResolver resolves a lesson's position in a teaching-material
// chapter tree into a directory path. Trees are fetched once per ID and
// cached for the run.
type chapterResolver struct {
	env   *Env
	mu    sync.Mutex
	cache map[string][]chapterNode
}

func newChapterResolver(env *Env) *chapterResolver {
	return &chapterResolver{env: env, cache: make(map[string][]chapterNode)}
}

func (r *chapterResolver) tree(ctx context.Context, treeID string) ([]chapterNode, error) {
	r.mu.Lock()
	if nodes, ok := r.cache[treeID]; ok {
		r.mu.Unlock()
		log.Debug().Str("op", "extractor/chapters").Msgf("tree cache hit for %s", treeID)
		return nodes, nil
	}
	r.mu.Unlock()

	// The endpoint returns either a root object with child_nodes or a bare
	// node array.
	var raw json.RawMessage
	if err := r.env.fetchJSON(ctx, "CHAPTER_TREE", treeID, &raw); err != nil {
		return nil, err
	}
	var nodes []chapterNode
	var root chapterNode
	if err := json.Unmarshal(raw, &root); err == nil && len(root.ChildNodes) > 0 {
		nodes = root.ChildNodes
	} else if err := json.Unmarshal(raw, &nodes); err != nil {
		log.Warn().Str("op", "extractor/chapters").Msgf("tree %s has unknown shape", treeID)
		nodes = nil
	}

	r.mu.Lock()
	r.cache[treeID] = nodes
	r.mu.Unlock()
	return nodes, nil
}

// ChapterPath walks the tree for the lesson node named by the last segment
// of chapterPath and returns the sanitized titles from root to that node.
// Unknown nodes resolve to an empty path rather than an error.
func (r *chapterResolver) ChapterPath(ctx context.Context, treeID, chapterPath string) ([]string, error) {
	nodes, err := r.tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	segments := strings.Split(chapterPath, "/")
	target := segments[len(segments)-1]
	if path := findNodePath(nodes, target, nil); path != nil {
		return path, nil
	}
	log.Warn().Str("op", "extractor/chapters").Msgf("node %s not found in tree %s", target, treeID)
	return nil, nil
}

func findNodePath(nodes []chapterNode, targetID string, prefix []string) []string {
	for _, node := range nodes {
		title := node.Title
		if title == "" {
			title = "未知章节"
		}
		path := append(append([]string{}, prefix...), utils.SanitizeName(title))
		if node.ID == targetID {
			return path
		}
		if found := findNodePath(node.ChildNodes, targetID, path); found != nil {
			return found
		}
	}
	return nil
}
