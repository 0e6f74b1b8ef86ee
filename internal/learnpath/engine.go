package learnpath

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
)

// readingWordsPerMinute drives time estimates. Middle-school reading speed
// for expository text, rounded down.
const readingWordsPerMinute = 150

// ChunkSource lists a knowledge base's chunks. knowledge.Service and
// knowledge.Store both satisfy it.
type ChunkSource interface {
	ListChunks(ctx context.Context, kbID uuid.UUID) ([]knowledge.Chunk, error)
}

// Engine plans learning paths over chunk-level objectives.
type Engine struct {
	chunks ChunkSource
	logger *slog.Logger
}

// NewEngine creates a path planner.
func NewEngine(chunks ChunkSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{chunks: chunks, logger: logger}
}

// objective is a planning node: one learning objective and the chunks that
// teach it.
type objective struct {
	name     string
	chunkIDs []uuid.UUID
	concepts []string
	prereqs  []string // prerequisite concepts
	minutes  int
}

// GenerateLearningPath plans an ordered path through the knowledge base
// toward the target objectives.
//
// The plan pulls in prerequisite objectives transitively: a step's
// prerequisite concepts must be taught by an earlier step, already known to
// the learner, or listed as assumed background when nothing teaches them.
// With a positive time budget (minutes), the path drops the steps farthest
// from the targets first; target steps are never dropped, and if the targets
// alone exceed the budget the path is infeasible.
func (e *Engine) GenerateLearningPath(ctx context.Context, kbID uuid.UUID, profile LearnerProfile, targets []string, budgetMinutes int) (LearningPath, error) {
	if len(targets) == 0 {
		return LearningPath{}, apperr.New(apperr.InvalidInput, "at least one target objective is required")
	}

	chunks, err := e.chunks.ListChunks(ctx, kbID)
	if err != nil {
		return LearningPath{}, fmt.Errorf("list chunks: %w", err)
	}

	objectives, teaches := buildGraph(chunks)

	for _, target := range targets {
		if _, ok := objectives[target]; !ok {
			return LearningPath{}, apperr.New(apperr.Infeasible,
				"objective %q is not covered by any content", target)
		}
	}

	known := toSet(profile.KnownConcepts)

	// Prerequisite closure from the targets, tracking each objective's
	// distance from the nearest target (targets are 0). Concepts nobody
	// teaches and nobody knows become assumed background.
	distance := make(map[string]int)
	assumed := make(map[string]bool)
	queue := make([]string, 0, len(targets))
	for _, target := range targets {
		if _, seen := distance[target]; !seen {
			distance[target] = 0
			queue = append(queue, target)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, concept := range objectives[name].prereqs {
			if known[concept] {
				continue
			}
			teachers := teaches[concept]
			if len(teachers) == 0 {
				assumed[concept] = true
				continue
			}
			for _, teacher := range teachers {
				if teacher == name {
					continue
				}
				d := distance[name] + 1
				if prev, seen := distance[teacher]; !seen || d < prev {
					if !seen {
						queue = append(queue, teacher)
					}
					distance[teacher] = d
				}
			}
		}
	}

	ordered, err := topoSort(distance, objectives, teaches, known)
	if err != nil {
		return LearningPath{}, err
	}

	// Time trimming: drop whole objectives, farthest from the targets
	// first, and record their concepts as assumed background.
	if budgetMinutes > 0 {
		total := 0
		for _, name := range ordered {
			total += objectives[name].minutes
		}
		if total > budgetMinutes {
			targetMinutes := 0
			for name, d := range distance {
				if d == 0 {
					targetMinutes += objectives[name].minutes
				}
			}
			if targetMinutes > budgetMinutes {
				return LearningPath{}, apperr.New(apperr.Infeasible,
					"target objectives need %d minutes, budget is %d", targetMinutes, budgetMinutes)
			}

			droppable := make([]string, 0, len(ordered))
			for _, name := range ordered {
				if distance[name] > 0 {
					droppable = append(droppable, name)
				}
			}
			sort.SliceStable(droppable, func(i, j int) bool {
				return distance[droppable[i]] > distance[droppable[j]]
			})

			dropped := make(map[string]bool)
			for _, name := range droppable {
				if total <= budgetMinutes {
					break
				}
				dropped[name] = true
				total -= objectives[name].minutes
				for _, concept := range objectives[name].concepts {
					assumed[concept] = true
				}
			}

			kept := ordered[:0]
			for _, name := range ordered {
				if !dropped[name] {
					kept = append(kept, name)
				}
			}
			ordered = kept
		}
	}

	path := LearningPath{
		ID:                uuid.New(),
		LearnerID:         profile.LearnerID,
		KnowledgeBaseID:   kbID,
		TargetObjectives:  targets,
		AssumedBackground: sortedKeys(assumed),
		CreatedAt:         time.Now(),
	}
	for i, name := range ordered {
		node := objectives[name]
		path.Steps = append(path.Steps, Step{
			Order:            i + 1,
			Objective:        name,
			ChunkIDs:         node.chunkIDs,
			Concepts:         node.concepts,
			EstimatedMinutes: node.minutes,
		})
		path.TotalMinutes += node.minutes
	}

	e.logger.Info("learning path generated",
		"learner", profile.LearnerID, "targets", len(targets),
		"steps", len(path.Steps), "minutes", path.TotalMinutes)
	return path, nil
}

// buildGraph groups chunks by learning objective and indexes which
// objectives teach each concept.
func buildGraph(chunks []knowledge.Chunk) (map[string]*objective, map[string][]string) {
	objectives := make(map[string]*objective)
	teaches := make(map[string][]string)

	for _, chunk := range chunks {
		for _, name := range chunk.LearningObjectives {
			node, ok := objectives[name]
			if !ok {
				node = &objective{name: name}
				objectives[name] = node
			}
			node.chunkIDs = append(node.chunkIDs, chunk.ID)
			node.concepts = mergeUnique(node.concepts, chunk.Concepts)
			node.prereqs = mergeUnique(node.prereqs, chunk.Prerequisites)
			node.minutes += readingMinutes(chunk.Content)
		}
	}
	for name, node := range objectives {
		for _, concept := range node.concepts {
			teaches[concept] = append(teaches[concept], name)
		}
	}
	return objectives, teaches
}

// topoSort orders the closure so prerequisites come first (Kahn's
// algorithm). A cycle among the objectives is infeasible.
func topoSort(closure map[string]int, objectives map[string]*objective, teaches map[string][]string, known map[string]bool) ([]string, error) {
	// Edge teacher -> dependent for every in-closure prerequisite.
	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(closure))
	for name := range closure {
		indegree[name] = 0
	}
	for name := range closure {
		for _, concept := range objectives[name].prereqs {
			if known[concept] {
				continue
			}
			for _, teacher := range teaches[concept] {
				if teacher == name {
					continue
				}
				if _, in := closure[teacher]; !in {
					continue
				}
				dependents[teacher] = append(dependents[teacher], name)
				indegree[name]++
			}
		}
	}

	// Deterministic order: ready nodes sorted by name.
	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var ordered []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, name)

		var unlocked []string
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(ordered) != len(closure) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, apperr.New(apperr.Infeasible,
			"cyclic prerequisites among objectives: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}

func readingMinutes(content string) int {
	words := len(strings.Fields(content))
	minutes := words / readingWordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func mergeUnique(dst, src []string) []string {
	seen := toSet(dst)
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
