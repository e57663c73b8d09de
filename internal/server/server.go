// Package server implements the MCP (Model Context Protocol) front door for
// GraphMind.
//
// A single server struct wraps the wired dependencies; tools respond with
// JSON content over stdio, one mcp.AddTool registration per exposed
// capability.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"graphmind/internal/analytics"
	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/orchestrator"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// directQueryTimeout bounds the analyze-subgraph tool's auxiliary direct-query
// path; on timeout it returns a fallback record rather than an error.
const directQueryTimeout = 30 * time.Second

// GraphMindServer coordinates the orchestrator and exposes it over MCP.
type GraphMindServer struct {
	cfg  *config.Config
	repo graphstore.Repository
	orch *orchestrator.Orchestrator

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewGraphMindServer(cfg *config.Config, repo graphstore.Repository, orch *orchestrator.Orchestrator) *GraphMindServer {
	return &GraphMindServer{cfg: cfg, repo: repo, orch: orch, sessions: make(map[string]*session.Session)}
}

func (s *GraphMindServer) storeSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *GraphMindServer) lookupSession(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// RegisterTools registers every tool this server exposes on mcpServer.
func (s *GraphMindServer) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "research-query",
		Description: "Runs the graph-of-thoughts reasoning pipeline over a research question and returns a synthesized answer with its confidence vector.",
	}, s.handleResearchQuery)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get-session-trace",
		Description: "Returns the recorded per-stage trace for a prior research-query session.",
	}, s.handleGetSessionTrace)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "analyze-subgraph",
		Description: "Runs community detection, centrality, strongly-connected-components, and density analytics over a subgraph seeded by criterion, independent of the research-query pipeline.",
	}, s.handleAnalyzeSubgraph)
}

// ResearchQueryRequest is the research-query tool's input.
type ResearchQueryRequest struct {
	Query                      string   `json:"query"`
	InitialDisciplinaryTags    []string `json:"initial_disciplinary_tags,omitempty"`
	InitialLayer               string   `json:"initial_layer,omitempty"`
	DecompositionDimensions    []string `json:"decomposition_dimensions,omitempty"`
	HypothesesPerDimensionMin  *int     `json:"hypotheses_per_dimension_min,omitempty"`
	HypothesesPerDimensionMax  *int     `json:"hypotheses_per_dimension_max,omitempty"`
	RandomSeed                 *int64   `json:"random_seed,omitempty"`
	EvidenceMaxIterations      *int     `json:"evidence_max_iterations,omitempty"`
	MergePairScanLimit         *int     `json:"merge_pair_scan_limit,omitempty"`
	SubgraphExtractionCriteria []string `json:"subgraph_extraction_criteria,omitempty"`
}

// ResearchQueryResponse is the research-query tool's output.
type ResearchQueryResponse struct {
	SessionID        string  `json:"session_id"`
	FinalAnswer      string  `json:"final_answer"`
	ConfidenceVector string  `json:"final_confidence_vector"`
	StagesExecuted   int     `json:"stages_executed"`
}

func (s *GraphMindServer) handleResearchQuery(ctx context.Context, req *mcp.CallToolRequest, input ResearchQueryRequest) (*mcp.CallToolResult, *ResearchQueryResponse, error) {
	if input.Query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}

	params := &session.OperationalParams{
		InitialDisciplinaryTags:    input.InitialDisciplinaryTags,
		InitialLayer:               input.InitialLayer,
		DecompositionDimensions:    input.DecompositionDimensions,
		HypothesesPerDimensionMin:  input.HypothesesPerDimensionMin,
		HypothesesPerDimensionMax:  input.HypothesesPerDimensionMax,
		RandomSeed:                 input.RandomSeed,
		EvidenceMaxIterations:      input.EvidenceMaxIterations,
		MergePairScanLimit:         input.MergePairScanLimit,
		SubgraphExtractionCriteria: input.SubgraphExtractionCriteria,
	}

	sess := session.New(uuid.NewString(), input.Query, params)
	if err := s.orch.ProcessQuery(ctx, sess); err != nil {
		return nil, nil, err
	}

	s.storeSession(sess)

	response := &ResearchQueryResponse{
		SessionID:        sess.ID,
		FinalAnswer:      sess.FinalAnswer,
		ConfidenceVector: sess.WireConfidence(),
		StagesExecuted:   len(sess.Trace),
	}
	return &mcp.CallToolResult{Content: toJSONContent(response)}, response, nil
}

// GetSessionTraceRequest is the get-session-trace tool's input.
type GetSessionTraceRequest struct {
	SessionID string `json:"session_id"`
}

// GetSessionTraceResponse is the get-session-trace tool's output.
type GetSessionTraceResponse struct {
	SessionID string                `json:"session_id"`
	Trace     []session.TraceRecord `json:"stage_outputs_trace"`
}

func (s *GraphMindServer) handleGetSessionTrace(ctx context.Context, req *mcp.CallToolRequest, input GetSessionTraceRequest) (*mcp.CallToolResult, *GetSessionTraceResponse, error) {
	sess, ok := s.lookupSession(input.SessionID)
	if !ok {
		return nil, nil, fmt.Errorf("unknown session: %s", input.SessionID)
	}
	response := &GetSessionTraceResponse{SessionID: sess.ID, Trace: sess.Trace}
	return &mcp.CallToolResult{Content: toJSONContent(response)}, response, nil
}

// AnalyzeSubgraphRequest is the analyze-subgraph tool's input. It seeds a
// subgraph the same way SubgraphExtraction does, with the full criterion
// (type allow-list, minimum confidence/impact, required/forbidden tags,
// layer filter, knowledge-gap flag), expands it, and runs the analytics
// suite over the result: the auxiliary direct-query path, not the
// eight-stage pipeline.
type AnalyzeSubgraphRequest struct {
	NodeTypes        []string `json:"node_types,omitempty"`
	RequiredTags     []string `json:"required_tags,omitempty"`
	ForbiddenTags    []string `json:"forbidden_tags,omitempty"`
	MinConfidence    float64  `json:"min_confidence,omitempty"`
	MinImpact        float64  `json:"min_impact,omitempty"`
	LayerID          string   `json:"layer_id,omitempty"`
	KnowledgeGapOnly bool     `json:"knowledge_gap_only,omitempty"`
	Depth            int      `json:"depth,omitempty"`
}

// AnalyzeSubgraphResponse is the analyze-subgraph tool's output.
type AnalyzeSubgraphResponse struct {
	NodeCount                   int                `json:"node_count"`
	EdgeCount                   int                `json:"edge_count"`
	Density                     float64            `json:"density"`
	Communities                 map[string]int     `json:"communities,omitempty"`
	DegreeCentrality            map[string]int     `json:"degree_centrality,omitempty"`
	BetweennessCentrality       map[string]float64 `json:"betweenness_centrality,omitempty"`
	ClosenessCentrality         map[string]float64 `json:"closeness_centrality,omitempty"`
	EigenvectorCentrality       map[string]float64 `json:"eigenvector_centrality,omitempty"`
	StronglyConnectedComponents [][]string         `json:"strongly_connected_components,omitempty"`
	TimedOut                    bool               `json:"timed_out"`
}

// handleAnalyzeSubgraph drives the auxiliary direct-query path under its own
// 30s wall-clock timeout; on timeout it returns a fallback record rather
// than an error.
func (s *GraphMindServer) handleAnalyzeSubgraph(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeSubgraphRequest) (*mcp.CallToolResult, *AnalyzeSubgraphResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, directQueryTimeout)
	defer cancel()

	depth := input.Depth
	if depth <= 0 {
		depth = s.cfg.Defaults.IncludeNeighborsDepth
	}

	response, err := s.runSubgraphAnalytics(ctx, input, depth)
	if err != nil {
		if ctx.Err() != nil {
			fallback := &AnalyzeSubgraphResponse{TimedOut: true}
			return &mcp.CallToolResult{Content: toJSONContent(fallback)}, fallback, nil
		}
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: toJSONContent(response)}, response, nil
}

func (s *GraphMindServer) runSubgraphAnalytics(ctx context.Context, input AnalyzeSubgraphRequest, depth int) (*AnalyzeSubgraphResponse, error) {
	nodeTypes := make([]types.NodeType, len(input.NodeTypes))
	for i, t := range input.NodeTypes {
		nodeTypes[i] = types.NodeType(t)
	}
	criterion := &graphstore.Criterion{
		NodeTypes:        nodeTypes,
		RequiredTags:     input.RequiredTags,
		ForbiddenTags:    input.ForbiddenTags,
		MinConfidence:    input.MinConfidence,
		MinImpact:        input.MinImpact,
		LayerID:          input.LayerID,
		KnowledgeGapOnly: input.KnowledgeGapOnly,
	}

	seedRecords, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
		Op: graphstore.OpSeedByCriterion, Criterion: criterion,
	}, graphstore.ModeRead)
	if err != nil {
		return nil, fmt.Errorf("analyze-subgraph: seed query failed: %w", err)
	}

	var seedIDs []string
	for _, r := range seedRecords {
		seedIDs = append(seedIDs, r.IDs...)
	}
	if len(seedIDs) == 0 {
		return &AnalyzeSubgraphResponse{}, nil
	}

	expanded, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
		Op: graphstore.OpExpandSubgraph, SeedIDs: seedIDs, Depth: depth,
	}, graphstore.ModeRead)
	if err != nil {
		return nil, fmt.Errorf("analyze-subgraph: subgraph expansion failed: %w", err)
	}

	var nodes []*types.Node
	var edges []*types.Edge
	for _, r := range expanded {
		if r.Node != nil {
			nodes = append(nodes, r.Node)
		}
		if r.Edge != nil {
			edges = append(edges, r.Edge)
		}
	}

	g, err := analytics.BuildFromSubgraph(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("analyze-subgraph: failed to build analytics graph: %w", err)
	}

	return &AnalyzeSubgraphResponse{
		NodeCount:                   g.Order(),
		EdgeCount:                   len(edges),
		Density:                     g.Density(),
		Communities:                 g.DetectCommunities(),
		DegreeCentrality:            g.DegreeCentrality(),
		BetweennessCentrality:       g.BetweennessCentrality(),
		ClosenessCentrality:         g.ClosenessCentrality(),
		EigenvectorCentrality:       g.EigenvectorCentrality(),
		StronglyConnectedComponents: g.TarjanSCC(),
	}, nil
}

// toJSONContent converts any data structure to MCP TextContent with JSON.
// Consumed by the calling model directly; no human-facing formatting.
func toJSONContent(data interface{}) []mcp.Content {
	jsonData, err := json.Marshal(data)
	if err != nil {
		errData := map[string]string{"error": err.Error()}
		jsonData, _ = json.Marshal(errData)
	}
	return []mcp.Content{&mcp.TextContent{Text: string(jsonData)}}
}
