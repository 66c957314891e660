// Package mcpserver exposes video screening as a Model Context Protocol tool
// over stdio, so an agent can submit a video and read back the risk summary.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/pipeline"
	"github.com/fpang/video-screen/internal/verdict"
)

// ToolName is the name agents call.
const ToolName = "screen_video"

// Screener runs one screening session.
type Screener interface {
	Screen(ctx context.Context, videoPath string, overrides ...pipeline.SessionOption) (*pipeline.Summary, error)
}

// ScreenInput is the tool's argument object.
type ScreenInput struct {
	VideoPath   string  `json:"video_path" jsonschema:"path of the video file to screen (.mp4, .avi, .mov or .mkv)"`
	Sensitivity float64 `json:"sensitivity,omitempty" jsonschema:"scene-change threshold between 0.1 and 0.9; lower finds more keyframes"`
}

// UnsafeFrame is one flagged keyframe.
type UnsafeFrame struct {
	FrameID     string `json:"frame_id"`
	FramePath   string `json:"frame_path"`
	RiskType    string `json:"risk_type"`
	Description string `json:"description"`
}

// ScreenOutput is the tool's structured result.
type ScreenOutput struct {
	SessionID    string        `json:"session_id"`
	FramesDir    string        `json:"frames_dir"`
	Frames       int           `json:"frames"`
	Safe         int           `json:"safe"`
	Unsafe       int           `json:"unsafe"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	AIDisabled   bool          `json:"ai_disabled"`
	ReportPath   string        `json:"report_path,omitempty"`
	RemoteURI    string        `json:"remote_uri,omitempty"`
	UnsafeFrames []UnsafeFrame `json:"unsafe_frames"`
	Errors       []string      `json:"errors"`
}

// New returns an MCP server with the screen_video tool registered.
func New(s Screener, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "video-screen", Version: version}, nil)
	h := &handler{screener: s}
	mcp.AddTool(server, &mcp.Tool{
		Name: ToolName,
		Description: "Extract scene-change keyframes from a local video, classify each for " +
			"content-safety risks, and return the unsafe frames with the path of the HTML report.",
	}, h.screenVideo)
	return server
}

// Run serves server on stdin/stdout until the client disconnects or ctx ends.
func Run(ctx context.Context, server *mcp.Server) error {
	log.Info().Msg("MCP server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

type handler struct {
	screener Screener
}

func (h *handler) screenVideo(ctx context.Context, _ *mcp.CallToolRequest, in ScreenInput) (*mcp.CallToolResult, ScreenOutput, error) {
	var overrides []pipeline.SessionOption
	if in.Sensitivity != 0 {
		if in.Sensitivity < frames.MinSensitivity || in.Sensitivity > frames.MaxSensitivity {
			return nil, ScreenOutput{}, fmt.Errorf("%w: got %.2f", frames.ErrSensitivity, in.Sensitivity)
		}
		overrides = append(overrides, pipeline.WithSensitivity(in.Sensitivity))
	}

	log.Info().Str("video", in.VideoPath).Msg("screen_video called")
	sum, err := h.screener.Screen(ctx, in.VideoPath, overrides...)
	if sum == nil {
		return nil, ScreenOutput{}, err
	}

	out := toOutput(sum)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
	}
	return nil, out, nil
}

func toOutput(sum *pipeline.Summary) ScreenOutput {
	out := ScreenOutput{
		SessionID:    sum.SessionID,
		FramesDir:    sum.FramesDir,
		Frames:       sum.Frames,
		Safe:         sum.Safe,
		Unsafe:       sum.Unsafe,
		Failed:       sum.Failed,
		Skipped:      sum.Skipped,
		AIDisabled:   sum.AIDisabled,
		UnsafeFrames: []UnsafeFrame{},
		Errors:       []string{},
	}
	for _, o := range sum.Outcomes {
		if o.Status != verdict.StatusUnsafe {
			continue
		}
		out.UnsafeFrames = append(out.UnsafeFrames, UnsafeFrame{
			FrameID:     o.Frame.ID,
			FramePath:   o.Frame.Path,
			RiskType:    o.Verdict.RiskType,
			Description: o.Verdict.Description,
		})
	}
	if sum.Report != nil {
		out.ReportPath = sum.Report.HTMLPath
		out.RemoteURI = sum.Report.RemoteURI
	}
	if sum.ProviderErr != nil {
		out.Errors = append(out.Errors, sum.ProviderErr.Error())
	}
	if sum.ExportErr != nil {
		out.Errors = append(out.Errors, sum.ExportErr.Error())
	}
	return out
}
