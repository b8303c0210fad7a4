package stubserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

// Server implements the computation-service contract the orchestrator
// depends on: defaults, lookup tables, calculate, suggestions,
// apply-suggestion and the websocket push channel.
type Server struct {
	engine *gin.Engine
}

// New builds the stub with all routes registered.
func New() *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", s.handleChannel)

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/defaults", s.handleDefaults)
		v1.GET("/lookup-tables", s.handleLookupTables)
		v1.POST("/calculate", s.handleCalculate)
		v1.POST("/suggestions", s.handleSuggestions)
		v1.POST("/apply-suggestion", s.handleApplySuggestion)
	}
	return s
}

// Handler exposes the router for http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

func (s *Server) handleDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, defaultSnapshot())
}

func (s *Server) handleLookupTables(c *gin.Context) {
	c.JSON(http.StatusOK, lookupTables)
}

func (s *Server) handleCalculate(c *gin.Context) {
	var snap datatypes.ParameterSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed snapshot: " + err.Error()})
		return
	}
	if err := snap.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if _, ok := annuityMonths[snap.MortalityTable]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown mortality table %q", snap.MortalityTable)})
		return
	}
	c.JSON(http.StatusOK, calculate(snap))
}

type suggestionsRequest struct {
	Snapshot       datatypes.ParameterSnapshot `json:"snapshot"`
	MaxSuggestions int                         `json:"max_suggestions"`
}

func (s *Server) handleSuggestions(c *gin.Context) {
	var req suggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}
	if req.MaxSuggestions <= 0 {
		req.MaxSuggestions = 3
	}

	result := calculate(req.Snapshot)
	var suggestions []datatypes.Suggestion

	if rate, ok := requiredContributionRate(req.Snapshot); ok && result.DeficitSurplus < 0 {
		suggestions = append(suggestions, datatypes.Suggestion{
			ID:          uuid.New().String(),
			Title:       "Raise contribution rate",
			Action:      datatypes.ActionUpdateContributionRate,
			ActionValue: datatypes.Float64Ptr(rate),
			ImpactDescription: fmt.Sprintf(
				"Raising the contribution rate to %.2f%% funds the benefit target.", rate),
		})
	}
	if result.DeficitSurplus < 0 && req.Snapshot.RetirementAge < 70 {
		suggestions = append(suggestions, datatypes.Suggestion{
			ID:                uuid.New().String(),
			Title:             "Postpone retirement",
			Action:            datatypes.ActionUpdateRetirementAge,
			ActionValue:       datatypes.Float64Ptr(float64(req.Snapshot.RetirementAge + 2)),
			ImpactDescription: "Two more contribution years shrink the funding gap.",
		})
	}
	suggestions = append(suggestions, datatypes.Suggestion{
		ID:                uuid.New().String(),
		Title:             "Match target to projection",
		Action:            datatypes.ActionSetTargetReplacementRate,
		ActionValue:       datatypes.Float64Ptr(result.AchievedReplacementRate),
		ImpactDescription: "Sets the replacement-rate target to what the plan already funds.",
	})

	if len(suggestions) > req.MaxSuggestions {
		suggestions = suggestions[:req.MaxSuggestions]
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
		"context": map[string]string{
			"deficit_surplus": fmt.Sprintf("%.2f", result.DeficitSurplus),
		},
	})
}

type applySuggestionRequest struct {
	Snapshot     datatypes.ParameterSnapshot `json:"snapshot"`
	Action       datatypes.SuggestionAction  `json:"action"`
	ActionValue  *float64                    `json:"action_value,omitempty"`
	ActionValues map[string]float64          `json:"action_values,omitempty"`
}

// knownActions mirrors the orchestrator's closed action set.
var knownActions = map[datatypes.SuggestionAction]bool{
	datatypes.ActionUpdateContributionRate:   true,
	datatypes.ActionUpdateRetirementAge:      true,
	datatypes.ActionSetTargetReplacementRate: true,
	datatypes.ActionSetTargetBenefitValue:    true,
	datatypes.ActionAdjustParameters:         true,
}

func (s *Server) handleApplySuggestion(c *gin.Context) {
	var req applySuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}
	if !knownActions[req.Action] {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown action %q", req.Action)})
		return
	}
	if req.ActionValue == nil && len(req.ActionValues) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "action carries no value"})
		return
	}
	// The stub only acknowledges; the client computes its own field updates.
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
