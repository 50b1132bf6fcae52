package models

import (
	"time"

	"github.com/san-kum/fencing-cv/server/annotate"
)

// AnalyzeFrameRequest is the JSON body of /api/v1/analyze-frame and the
// payload of a websocket "frame" message.
type AnalyzeFrameRequest struct {
	ImageData string `json:"image_data"`
	PoseType  string `json:"pose_type"`
	ClientID  string `json:"client_id,omitempty"`
}

// AnalyzeResponse is the reply of every analysis endpoint. Browser clients only
// read success, original_image, annotated_image, feedback and pose_type; the
// structured fields serve API clients.
type AnalyzeResponse struct {
	Success        bool                   `json:"success"`
	OriginalImage  string                 `json:"original_image,omitempty"`
	AnnotatedImage string                 `json:"annotated_image,omitempty"`
	Feedback       []string               `json:"feedback"`
	PoseType       string                 `json:"pose_type"`
	Status         string                 `json:"status"`
	Angles         map[string]float64     `json:"angles,omitempty"`
	Annotations    []annotate.Instruction `json:"annotations,omitempty"`
	AnalysisID     string                 `json:"analysis_id,omitempty"`
	Facing         string                 `json:"facing,omitempty"`
	ProcessingTime float64                `json:"processing_time_ms"`
	Cached         bool                   `json:"cached"`
	Error          string                 `json:"error,omitempty"`
}

// AnalysisRecord is one row of analysis history.
type AnalysisRecord struct {
	ID        string             `json:"id"`
	PoseType  string             `json:"pose_type"`
	Status    string             `json:"status"`
	Feedback  []string           `json:"feedback"`
	Angles    map[string]float64 `json:"angles,omitempty"`
	Facing    string             `json:"facing,omitempty"`
	ImageHash string             `json:"image_hash"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	ClientID  string             `json:"client_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

type HistorySummary struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByPose   map[string]int64 `json:"by_pose_type"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type WSMessage struct {
	Type      string         `json:"type"`
	Data      any            `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

const (
	FacingRight = "right"
	FacingLeft  = "left"
)
