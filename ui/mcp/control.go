package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/timeutils"
)

type ControlHandler struct {
	control  *application.Control
	location *time.Location
}

func InitMcpControl(control *application.Control, loc *time.Location) *ControlHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ControlHandler{control: control, location: loc}
}

func (h *ControlHandler) AddControlTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListPages(), h.handleListPages)
	mcpServer.AddTool(h.toolListTopics(), h.handleListTopics)
	mcpServer.AddTool(h.toolCreateTopic(), h.handleCreateTopic)
	mcpServer.AddTool(h.toolGenerateTopic(), h.handleGenerateTopic)
	mcpServer.AddTool(h.toolDeleteTopic(), h.handleDeleteTopic)
	mcpServer.AddTool(h.toolListPosts(), h.handleListPosts)
	mcpServer.AddTool(h.toolSchedulePost(), h.handleSchedulePost)
	mcpServer.AddTool(h.toolPostAction("autoposter_retry_post", "Retry Post",
		"Put a failed or pending post back in the queue with a fresh retry budget."), h.handleRetryPost)
	mcpServer.AddTool(h.toolPostAction("autoposter_publish_now", "Publish Now",
		"Publish a post immediately, regardless of its scheduled time."), h.handlePublishNow)
	mcpServer.AddTool(h.toolPostAction("autoposter_delete_post", "Delete Post",
		"Delete a scheduled post."), h.handleDeletePost)
	mcpServer.AddTool(h.toolActivityLog(), h.handleActivityLog)
	mcpServer.AddTool(h.toolSetAutoGeneration(), h.handleSetAutoGeneration)
	mcpServer.AddTool(h.toolProviders(), h.handleProviders)
}

func (h *ControlHandler) toolListPages() mcp.Tool {
	return mcp.NewTool(
		"autoposter_list_pages",
		mcp.WithDescription("List the Facebook pages the scheduler publishes to."),
		mcp.WithTitleAnnotation("List Pages"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *ControlHandler) handleListPages(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := h.control.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(pages, fmt.Sprintf("Found %d pages", len(pages))), nil
}

func (h *ControlHandler) toolListTopics() mcp.Tool {
	return mcp.NewTool(
		"autoposter_list_topics",
		mcp.WithDescription("List the topic plans of a page."),
		mcp.WithTitleAnnotation("List Topics"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("owner_id",
			mcp.Description("The page id."),
			mcp.Required(),
		),
	)
}

func (h *ControlHandler) handleListTopics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := request.RequireString("owner_id")
	if err != nil {
		return nil, err
	}
	plans, err := h.control.ListTopics(ctx, owner)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(plans, fmt.Sprintf("Found %d topics", len(plans))), nil
}

func (h *ControlHandler) toolCreateTopic() mcp.Tool {
	return mcp.NewTool(
		"autoposter_create_topic",
		mcp.WithDescription("Create a topic plan and optionally schedule its posts right away."),
		mcp.WithTitleAnnotation("Create Topic"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("owner_id", mcp.Description("The page id."), mcp.Required()),
		mcp.WithString("name", mcp.Description("Topic the posts are written about."), mcp.Required()),
		mcp.WithNumber("posts_per_day", mcp.Description("Posts per scheduled day."), mcp.Required()),
		mcp.WithArray("time_slots",
			mcp.Description("Times of day as HH:MM, reused cyclically."),
			mcp.WithStringItems(),
			mcp.Required(),
		),
		mcp.WithString("start_date", mcp.Description("First day, YYYY-MM-DD."), mcp.Required()),
		mcp.WithString("end_date", mcp.Description("Last day, YYYY-MM-DD."), mcp.Required()),
		mcp.WithString("cadence",
			mcp.Description("How far apart scheduled days are."),
			mcp.Enum(string(topic.CadenceDaily), string(topic.CadenceWeekly), string(topic.CadenceMonthly)),
		),
		mcp.WithBoolean("include_media", mcp.Description("Attach a generated image when the media roll succeeds.")),
		mcp.WithBoolean("generate", mcp.Description("Schedule the posts immediately after creating the topic.")),
	)
}

func (h *ControlHandler) handleCreateTopic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := timeutils.ParseDate(request.GetString("start_date", ""), h.location)
	if err != nil {
		return nil, pkgError.PlanningError("start_date: " + err.Error())
	}
	end, err := timeutils.ParseDate(request.GetString("end_date", ""), h.location)
	if err != nil {
		return nil, pkgError.PlanningError("end_date: " + err.Error())
	}
	includeMedia, err := optionalBool(args, "include_media")
	if err != nil {
		return nil, err
	}
	generate, err := optionalBool(args, "generate")
	if err != nil {
		return nil, err
	}

	plan, err := h.control.CreateTopic(ctx, topic.Plan{
		OwnerID:      request.GetString("owner_id", ""),
		Name:         request.GetString("name", ""),
		PostsPerDay:  request.GetInt("posts_per_day", 0),
		TimeSlots:    toStrings(args["time_slots"]),
		StartDate:    start,
		EndDate:      end,
		Cadence:      topic.Cadence(request.GetString("cadence", "")),
		IncludeMedia: includeMedia,
	})
	if err != nil {
		return nil, err
	}

	result := map[string]any{"topic": plan}
	fallback := fmt.Sprintf("Topic %s created", plan.ID)
	if generate {
		report, err := h.control.GenerateNow(ctx, plan.ID, false)
		if err != nil {
			return nil, err
		}
		result["generated"] = report
		fallback += fmt.Sprintf(", %d post(s) scheduled", report.Created)
	}
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *ControlHandler) toolGenerateTopic() mcp.Tool {
	return mcp.NewTool(
		"autoposter_generate_topic",
		mcp.WithDescription("Schedule the posts of an existing topic. Slots already scheduled are skipped."),
		mcp.WithTitleAnnotation("Generate Topic Posts"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("topic_id", mcp.Description("The topic id."), mcp.Required()),
		mcp.WithBoolean("immediate", mcp.Description("Use today's slots only, including ones already past.")),
	)
}

func (h *ControlHandler) handleGenerateTopic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("topic_id")
	if err != nil {
		return nil, err
	}
	immediate, err := optionalBool(request.GetArguments(), "immediate")
	if err != nil {
		return nil, err
	}
	report, err := h.control.GenerateNow(ctx, id, immediate)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(report, fmt.Sprintf("%d created, %d skipped, %d failed", report.Created, report.Skipped, report.Failed)), nil
}

func (h *ControlHandler) toolDeleteTopic() mcp.Tool {
	return mcp.NewTool(
		"autoposter_delete_topic",
		mcp.WithDescription("Delete a topic together with all of its posts."),
		mcp.WithTitleAnnotation("Delete Topic"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("topic_id", mcp.Description("The topic id."), mcp.Required()),
	)
}

func (h *ControlHandler) handleDeleteTopic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("topic_id")
	if err != nil {
		return nil, err
	}
	if err := h.control.DeleteTopic(ctx, id); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Topic %s deleted", id)), nil
}

func (h *ControlHandler) toolListPosts() mcp.Tool {
	return mcp.NewTool(
		"autoposter_list_posts",
		mcp.WithDescription("List the scheduled posts of a page, soonest first."),
		mcp.WithTitleAnnotation("List Posts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("owner_id", mcp.Description("The page id."), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of posts, default 50.")),
	)
}

func (h *ControlHandler) handleListPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := request.RequireString("owner_id")
	if err != nil {
		return nil, err
	}
	items, err := h.control.ListPosts(ctx, owner, request.GetInt("limit", 50))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(items, fmt.Sprintf("Found %d posts", len(items))), nil
}

func (h *ControlHandler) toolSchedulePost() mcp.Tool {
	return mcp.NewTool(
		"autoposter_schedule_post",
		mcp.WithDescription("Schedule a manually written post."),
		mcp.WithTitleAnnotation("Schedule Post"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("owner_id", mcp.Description("The page id."), mcp.Required()),
		mcp.WithString("text", mcp.Description("Post text."), mcp.Required()),
		mcp.WithString("scheduled_at", mcp.Description("Delivery time, RFC3339."), mcp.Required()),
		mcp.WithString("media_ref", mcp.Description("Optional image URL.")),
	)
}

func (h *ControlHandler) handleSchedulePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("scheduled_at")
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return nil, pkgError.ValidationError("scheduled_at: must be RFC3339")
	}
	item, err := h.control.CreatePost(ctx, post.ScheduledItem{
		OwnerID:     request.GetString("owner_id", ""),
		Text:        request.GetString("text", ""),
		MediaRef:    request.GetString("media_ref", ""),
		ScheduledAt: at,
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(item, fmt.Sprintf("Post %s scheduled for %s", item.ID, item.ScheduledAt.Format(time.RFC3339))), nil
}

func (h *ControlHandler) toolPostAction(name, title, description string) mcp.Tool {
	return mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithTitleAnnotation(title),
		mcp.WithString("post_id", mcp.Description("The post id."), mcp.Required()),
	)
}

func (h *ControlHandler) handleRetryPost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	item, err := h.control.RetryPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(item, fmt.Sprintf("Post %s queued for retry", id)), nil
}

func (h *ControlHandler) handlePublishNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	item, err := h.control.PublishNow(ctx, id)
	if err != nil {
		return nil, err
	}
	fallback := fmt.Sprintf("Post %s is %s", id, item.Status)
	if item.LastError != "" {
		fallback += ": " + item.LastError
	}
	return mcp.NewToolResultStructured(item, fallback), nil
}

func (h *ControlHandler) handleDeletePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	if err := h.control.DeletePost(ctx, id); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Post %s deleted", id)), nil
}

func (h *ControlHandler) toolActivityLog() mcp.Tool {
	return mcp.NewTool(
		"autoposter_activity_log",
		mcp.WithDescription("Read the most recent activity log entries of a page."),
		mcp.WithTitleAnnotation("Activity Log"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("owner_id", mcp.Description("The page id."), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries, default 50.")),
	)
}

func (h *ControlHandler) handleActivityLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := request.RequireString("owner_id")
	if err != nil {
		return nil, err
	}
	entries, err := h.control.ActivityLog(ctx, owner, request.GetInt("limit", 50))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(entries, fmt.Sprintf("Found %d entries", len(entries))), nil
}

func (h *ControlHandler) toolSetAutoGeneration() mcp.Tool {
	return mcp.NewTool(
		"autoposter_set_auto_generation",
		mcp.WithDescription("Turn the background topic planner on or off."),
		mcp.WithTitleAnnotation("Set Auto Generation"),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithBoolean("enabled", mcp.Description("New state."), mcp.Required()),
	)
}

func (h *ControlHandler) handleSetAutoGeneration(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if _, ok := args["enabled"]; !ok {
		return nil, pkgError.ValidationError("enabled is required")
	}
	enabled, err := toBool(args["enabled"])
	if err != nil {
		return nil, err
	}
	if err := h.control.SetAutoGeneration(ctx, enabled); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Auto generation enabled=%v", enabled)), nil
}

func (h *ControlHandler) toolProviders() mcp.Tool {
	return mcp.NewTool(
		"autoposter_providers",
		mcp.WithDescription("Show quota, cooldown and failure state of every generation provider."),
		mcp.WithTitleAnnotation("Providers"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *ControlHandler) handleProviders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	states := h.control.Providers()
	return mcp.NewToolResultStructured(states, fmt.Sprintf("%d providers", len(states))), nil
}

func optionalBool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return false, nil
	}
	return toBool(v)
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("unable to parse boolean value %q", v)
		}
		return parsed, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	default:
		return false, fmt.Errorf("unsupported boolean value type %T", value)
	}
}
