package stage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// InitializationStage locates or creates the session's ROOT node.
type InitializationStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

// NewInitializationStage constructs the stage.
func NewInitializationStage(repo graphstore.Repository, cfg *config.Config) *InitializationStage {
	return &InitializationStage{repo: repo, cfg: cfg}
}

func (s *InitializationStage) Name() string { return "initialization" }

func (s *InitializationStage) Cleanup() error { return nil }

// Execute locates or creates the root node for the session's query.
func (s *InitializationStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	query := sess.Query
	if query == "" {
		return Failure("Invalid initial query. It must be a non-empty string.")
	}

	var newTags []string
	if sess.Params != nil {
		newTags = sess.Params.InitialDisciplinaryTags
	}

	records, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
		Op: graphstore.OpFindNodeByQueryContext,
		ID: query,
	}, graphstore.ModeRead)
	if err != nil {
		return Failure("failed to query existing root: " + err.Error())
	}

	var root *types.Node
	usedExisting := false
	updatedTags := false

	for _, r := range records {
		if r.Node != nil && r.Node.Metadata.QueryContext == query {
			root = r.Node
			usedExisting = true
			break
		}
	}

	if root != nil {
		oldTags := strings.Join(root.Metadata.TagSlice(), ",")
		if changed := root.Metadata.UnionTags(newTags); changed {
			updatedTags = true
			root.UpdatedAt = time.Now()
			root.Metadata.Revise("disciplinary_tags", oldTags, strings.Join(root.Metadata.TagSlice(), ","))
		}
		if updatedTags {
			if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: root}}, graphstore.ModeWrite); err != nil {
				return Failure("failed to update root tags: " + err.Error())
			}
		}
	} else {
		initial := s.cfg.Defaults.InitialConfidenceVector()
		layer := s.cfg.Defaults.InitialLayer
		if sess.Params != nil && sess.Params.InitialLayer != "" {
			layer = sess.Params.InitialLayer
		}

		root = &types.Node{
			ID:         uuid.NewString(),
			Label:      query,
			Type:       types.NodeRoot,
			Confidence: initial.Clamped(),
			Metadata: types.NodeMetadata{
				QueryContext:    query,
				EpistemicStatus: types.StatusAssumption,
				LayerID:         layer,
				ImpactScore:     0.9,
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		root.Metadata.UnionTags(newTags)

		if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: root, Labels: []string{string(types.NodeRoot)}}}, graphstore.ModeWrite); err != nil {
			return Failure("failed to create root node: " + err.Error())
		}
	}

	if root == nil || root.ID == "" {
		return Failure("root node missing after initialization")
	}

	nodesCreated := 0
	if !usedExisting {
		nodesCreated = 1
	}

	return StageOutput{
		Success: true,
		Summary: "root node resolved",
		ContextUpdate: contextSlot("initialization", map[string]interface{}{
			"root_node_id":                root.ID,
			"initial_disciplinary_tags":   root.Metadata.TagSlice(),
			"used_existing_neo4j_node":    usedExisting,
			"updated_existing_node_tags":  updatedTags,
			"nodes_created_in_neo4j":      nodesCreated,
		}),
	}
}
