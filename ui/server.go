package ui

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"urnlab/app"
	"urnlab/domain/core"
	apperrors "urnlab/internal/errors"
)

// Server is the participant-facing HTTP surface. Every route is a thin
// wrapper over the experiment service; no session state lives here.
type Server struct {
	router *gin.Engine
	svc    *app.ExperimentService
}

// NewServer creates the participant API server
func NewServer(svc *app.ExperimentService, ginMode string) *Server {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	s := &Server{
		router: gin.Default(),
		svc:    svc,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the participant routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleInstructions)
	s.router.GET("/consent", s.handleConsentDocument)

	api := s.router.Group("/api")
	{
		api.POST("/start_experiment", s.handleStartExperiment)
		api.POST("/consent", s.handleConsent)
		api.GET("/status/:participant", s.handleStatus)

		api.POST("/training/next_trial", s.handleTrainingNext)
		api.POST("/training/choice", s.handleTrainingChoice)
		api.POST("/log_trial_result", s.handleLogTrialResult)

		api.POST("/initial_estimate", s.handleInitialEstimate)
		api.POST("/draw_ball", s.handleDrawBall)
		api.POST("/submit_trial", s.handleSubmitTrial)
		api.GET("/get_stage_data", s.handleGetStageData)

		api.POST("/export_data", s.handleExportData)
	}
}

// Start starts the participant API server
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleInstructions(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", renderMarkdown(instructionsMarkdown))
}

func (s *Server) handleConsentDocument(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", renderMarkdown(consentMarkdown))
}

type participantRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

func (s *Server) handleStartExperiment(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	status, err := s.svc.StartSession(c.Request.Context(), req.ParticipantID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (s *Server) handleConsent(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		Agree         *bool  `json:"agree" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and agree are required"})
		return
	}
	status, err := s.svc.Consent(c.Request.Context(), req.ParticipantID, *req.Agree)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.svc.Status(c.Request.Context(), c.Param("participant"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleTrainingNext(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	trial, err := s.svc.NextTrainingTrial(c.Request.Context(), req.ParticipantID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

func (s *Server) handleTrainingChoice(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		Choice        string `json:"choice" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and choice are required"})
		return
	}
	result, err := s.svc.SubmitTrainingChoice(c.Request.Context(), req.ParticipantID, req.Choice)
	if err != nil {
		s.renderError(c, err)
		return
	}
	message := trainingFeedbackIncorrect
	if result.Feedback.Result == "correct" {
		message = trainingFeedbackCorrect
	}
	c.JSON(http.StatusOK, gin.H{
		"feedback":  result.Feedback,
		"message":   message,
		"completed": result.Completed,
		"phase":     result.Phase,
	})
}

func (s *Server) handleLogTrialResult(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		Trial         int    `json:"trial" binding:"required"`
		Result        string `json:"result" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id, trial and result are required"})
		return
	}
	status, err := s.svc.LogTrainingResult(c.Request.Context(), req.ParticipantID, req.Trial, req.Result)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleInitialEstimate(c *gin.Context) {
	var req struct {
		ParticipantID string   `json:"participant_id" binding:"required"`
		Estimate      *float64 `json:"estimate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and estimate are required"})
		return
	}
	if err := s.svc.RecordInitialEstimate(c.Request.Context(), req.ParticipantID, *req.Estimate); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (s *Server) handleDrawBall(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		Jar           string `json:"jar" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and jar are required"})
		return
	}
	draw, err := s.svc.Draw(c.Request.Context(), req.ParticipantID, req.Jar)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, draw)
}

func (s *Server) handleSubmitTrial(c *gin.Context) {
	var req struct {
		ParticipantID string   `json:"participant_id" binding:"required"`
		Stage         string   `json:"stage" binding:"required"`
		Outcome       string   `json:"outcome" binding:"required"`
		Estimate      *float64 `json:"estimate" binding:"required"`
		Confidence    *float64 `json:"confidence" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id, stage, outcome, estimate and confidence are required"})
		return
	}
	view, err := s.svc.SubmitTrial(c.Request.Context(), req.ParticipantID, req.Stage, req.Outcome, *req.Estimate, *req.Confidence)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetStageData(c *gin.Context) {
	pid := c.Query("participant_id")
	stage := c.Query("stage")
	if pid == "" || stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id and stage are required"})
		return
	}
	snap, err := s.svc.StageData(c.Request.Context(), pid, stage)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleExportData(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	result, err := s.svc.Export(c.Request.Context(), req.ParticipantID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// renderError maps domain errors onto HTTP statuses. Validation problems are
// the participant's to fix; sequencing and phase problems mean the client is
// driving the protocol wrong.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsValidationError(err):
		status = http.StatusBadRequest
	case core.IsNotFoundError(err):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateParticipant):
		status = http.StatusConflict
	case core.IsProtocolError(err), core.IsCompletionSignal(err):
		status = http.StatusConflict
	}
	body := gin.H{"error": err.Error()}
	if apperrors.IsAppError(err) {
		body["code"] = apperrors.GetCode(err)
	}
	c.JSON(status, body)
}
