package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/faultline/faultline/internal/engine"
	"github.com/faultline/faultline/internal/nav"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/schema"
)

// handleCompile registers flowchart source as a graph version.
func (s *FaultlineServer) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}

	gv, compileErr := s.engine.Compile(ctx, source)
	if compileErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", compileErr)), nil
	}

	return marshalResult(map[string]any{
		"index": gv.Index,
		"hash":  gv.Hash,
		"topic": gv.Topic,
		"title": gv.Title,
	})
}

// handleStart opens a session and returns the root render.
func (s *FaultlineServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	messageID, err := req.RequireString("message_id")
	if err != nil {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError("topic is required"), nil
	}

	res, startErr := s.engine.Start(ctx, sessionID, messageID, topic)
	if startErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", startErr)), nil
	}
	return s.deliver(res)
}

// handleAct applies one button press.
func (s *FaultlineServer) handleAct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	messageID, err := req.RequireString("message_id")
	if err != nil {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	tok, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError("token is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	res, actErr := s.engine.Act(ctx, nav.ActRequest{
		SessionID: sessionID,
		MessageID: messageID,
		Token:     tok,
		Action: schema.UserAction{
			Kind:  schema.ActionKind(action),
			Label: req.GetString("label", ""),
		},
		Topic: req.GetString("topic", ""),
	})
	if actErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("act failed: %v", actErr)), nil
	}
	return s.deliver(res)
}

// handleAsk routes a free-text query.
func (s *FaultlineServer) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	equipment, err := req.RequireString("equipment")
	if err != nil {
		return mcp.NewToolResultError("equipment is required"), nil
	}
	problem, err := req.RequireString("problem")
	if err != nil {
		return mcp.NewToolResultError("problem is required"), nil
	}

	res, askErr := s.engine.Ask(ctx, engine.AskRequest{
		Equipment: equipment,
		Problem:   problem,
		Context:   req.GetString("context", ""),
	})
	if askErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", askErr)), nil
	}
	return marshalResult(res)
}

// handleAccept accepts a guide and optionally activates the draft.
func (s *FaultlineServer) handleAccept(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guideID, err := req.RequireString("guide_id")
	if err != nil {
		return mcp.NewToolResultError("guide_id is required"), nil
	}

	d, acceptErr := s.engine.AcceptGuide(ctx, guideID)
	if acceptErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("accept failed: %v", acceptErr)), nil
	}

	out := map[string]any{
		"guide_id": guideID,
		"draft_id": d.ID,
		"status":   d.Status,
	}

	if req.GetBool("activate", false) {
		gv, actErr := s.engine.ActivateDraft(ctx, d.ID)
		if actErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("draft created but activation failed: %v", actErr)), nil
		}
		out["activated_index"] = gv.Index
		out["activated_topic"] = gv.Topic
	}
	return marshalResult(out)
}

// handleReject rejects a guide.
func (s *FaultlineServer) handleReject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guideID, err := req.RequireString("guide_id")
	if err != nil {
		return mcp.NewToolResultError("guide_id is required"), nil
	}

	if rejectErr := s.engine.RejectGuide(ctx, guideID); rejectErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reject failed: %v", rejectErr)), nil
	}
	return marshalResult(map[string]any{"guide_id": guideID, "status": schema.StatusRejected})
}

// handleQuery lists gaps, guides, versions, or drafts based on filters.
func (s *FaultlineServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "gaps":
		return s.queryGaps(ctx, filter)
	case "guides":
		return s.queryGuides(ctx, filter)
	case "versions":
		return s.queryVersions(ctx, filter)
	case "drafts":
		return s.queryDrafts(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *FaultlineServer) queryGaps(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	gf := store.GapFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if route, ok := filter["route"].(string); ok {
		gf.Route = schema.Route(route)
	}
	if status, ok := filter["status"].(string); ok {
		gf.Status = schema.GuideStatus(status)
	}
	if overdue, ok := filter["overdue_only"].(bool); ok {
		gf.OverdueOnly = overdue
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			gf.Since = &t
		}
	}

	gaps, err := s.engine.ListGaps(ctx, gf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"gaps": gaps})
}

func (s *FaultlineServer) queryGuides(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	gf := store.GuideFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if status, ok := filter["status"].(string); ok {
		gf.Status = schema.GuideStatus(status)
	}
	if gapID, ok := filter["gap_id"].(string); ok {
		gf.GapID = gapID
	}

	guides, err := s.engine.ListGuides(ctx, gf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"guides": guides})
}

func (s *FaultlineServer) queryVersions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	vf := store.VersionFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if topic, ok := filter["topic"].(string); ok {
		vf.Topic = topic
	}
	if status, ok := filter["status"].(string); ok {
		vf.Status = status
	}

	versions, err := s.engine.ListVersions(ctx, vf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"versions": versions})
}

func (s *FaultlineServer) queryDrafts(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	status := schema.GuideStatus("")
	if v, ok := filter["status"].(string); ok {
		status = schema.GuideStatus(v)
	}

	drafts, err := s.engine.ListDrafts(ctx, status, extractInt(filter, "limit", 50))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"drafts": drafts})
}

// deliver returns a render only while it is still the session's latest.
// A superseded render is reported as such instead; applying it would fork
// the message's edit history.
func (s *FaultlineServer) deliver(res *nav.Result) (*mcp.CallToolResult, error) {
	if !s.engine.IsCurrent(res.SessionID, res.Generation) {
		return marshalResult(map[string]any{
			"session_id": res.SessionID,
			"superseded": true,
		})
	}
	return marshalResult(map[string]any{
		"session_id": res.SessionID,
		"render":     res.Render,
	})
}

func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	switch v := filter[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
