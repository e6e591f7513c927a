package simulator

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/models"
)

// body is the standard response envelope.
type body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, body{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err string) {
	c.JSON(status, body{Success: false, Error: err})
}

// eventFrame is the wire envelope pushed to socket subscribers. It matches
// the client decoder's expectations.
type eventFrame struct {
	Type      string      `json:"type"`
	StreamID  int64       `json:"stream_id"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

func frame(kind string, streamID int64, payload interface{}) eventFrame {
	return eventFrame{
		Type:      kind,
		StreamID:  streamID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Server wires the simulator state, hub and HTTP routes together.
type Server struct {
	state  *State
	hub    *Hub
	logger *zap.Logger
}

// NewServer creates a simulator server.
func NewServer(state *State, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{state: state, hub: hub, logger: logger}
}

// Router builds the gin router with every simulator endpoint.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })
	router.GET("/socket/v1", s.hub.ServeWs())

	router.GET("/livestreams/active", s.activeStreams)
	router.GET("/livestreams/:id", s.stream)
	router.POST("/livestreams/:id/start", s.startStream)
	router.POST("/livestreams/:id/stop", s.stopStream)
	router.GET("/livestreams/:id/viewers", s.viewers)

	router.GET("/v1/engagement/polls", s.polls)
	router.GET("/v1/engagement/contests", s.contests)
	router.POST("/v1/engagement/polls/:id/vote", s.vote)
	router.POST("/v1/engagement/contests/:id/participate", s.participate)

	router.GET("/chat/by-channel/:channel", s.chatHistory)
	router.POST("/chat/send", s.chatSend)

	router.POST("/admin/events", s.injectEvent)

	return router
}

func (s *Server) streamID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid stream id")
		return 0, false
	}
	return id, true
}

func (s *Server) activeStreams(c *gin.Context) {
	ok(c, s.state.Streams(true))
}

func (s *Server) stream(c *gin.Context) {
	id, valid := s.streamID(c)
	if !valid {
		return
	}
	st, found := s.state.Stream(id)
	if !found {
		fail(c, http.StatusNotFound, "stream not found")
		return
	}
	ok(c, st)
}

func (s *Server) startStream(c *gin.Context) {
	id, valid := s.streamID(c)
	if !valid {
		return
	}
	st, found := s.state.SetLive(id, true)
	if !found {
		fail(c, http.StatusNotFound, "stream not found")
		return
	}
	s.hub.Broadcast(id, frame("stream_started", id, st))
	ok(c, st)
}

func (s *Server) stopStream(c *gin.Context) {
	id, valid := s.streamID(c)
	if !valid {
		return
	}
	st, found := s.state.SetLive(id, false)
	if !found {
		fail(c, http.StatusNotFound, "stream not found")
		return
	}
	s.hub.Broadcast(id, frame("stream_ended", id, st))
	ok(c, st)
}

func (s *Server) viewers(c *gin.Context) {
	id, valid := s.streamID(c)
	if !valid {
		return
	}
	st, found := s.state.Stream(id)
	if !found {
		fail(c, http.StatusNotFound, "stream not found")
		return
	}
	ok(c, gin.H{"count": st.ViewerCount})
}

func (s *Server) polls(c *gin.Context) {
	ok(c, s.state.Polls(c.Query("broadcastId")))
}

func (s *Server) contests(c *gin.Context) {
	ok(c, s.state.Contests(c.Query("broadcastId")))
}

type voteRequest struct {
	OptionID string `json:"option_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
}

func (s *Server) vote(c *gin.Context) {
	pollID := c.Param("id")
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	switch s.state.Vote(pollID, req.OptionID, req.UserID) {
	case VoteNotFound:
		fail(c, http.StatusNotFound, "poll not found")
	case VoteAlreadyVoted:
		fail(c, http.StatusConflict, "already voted")
	case VoteClosed:
		fail(c, http.StatusGone, "poll window closed")
	default:
		ok(c, gin.H{"poll_id": pollID, "option_id": req.OptionID})
	}
}

type participateRequest struct {
	UserID  string            `json:"user_id" binding:"required"`
	Answers map[string]string `json:"answers"`
}

func (s *Server) participate(c *gin.Context) {
	contestID := c.Param("id")
	var req participateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if !s.state.HasContest(contestID) {
		fail(c, http.StatusNotFound, "contest not found")
		return
	}
	ok(c, gin.H{"contest_id": contestID})
}

func (s *Server) chatHistory(c *gin.Context) {
	// Channel path segments come prefixed: chat-{channel}.
	channel := c.Param("channel")
	if len(channel) > 5 && channel[:5] == "chat-" {
		channel = channel[5:]
	}
	ok(c, s.state.ChatHistory(channel))
}

type chatSendRequest struct {
	ChannelID string                 `json:"channel_id"`
	Role      string                 `json:"role"`
	Message   models.LiveChatMessage `json:"message"`
}

func (s *Server) chatSend(c *gin.Context) {
	var req chatSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Message.ID == "" {
		req.Message.ID = uuid.New().String()
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now()
	}
	s.state.AppendChat(req.ChannelID, req.Message)
	// Echo to socket subscribers when the channel maps to a seeded stream.
	if id, err := strconv.ParseInt(req.ChannelID, 10, 64); err == nil {
		s.hub.Broadcast(id, frame("chat_message", id, req.Message))
	}
	ok(c, req.Message)
}

// injectEvent pushes an arbitrary event frame to a stream's subscribers, for
// scripting client scenarios.
func (s *Server) injectEvent(c *gin.Context) {
	var req eventFrame
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Timestamp == "" {
		req.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	s.hub.Broadcast(req.StreamID, req)
	ok(c, gin.H{"delivered_to": s.hub.SubscriberCount(req.StreamID)})
}
