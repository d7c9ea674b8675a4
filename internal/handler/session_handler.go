package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
	"github.com/yourusername/livequiz-api/internal/service"
	"github.com/yourusername/livequiz-api/internal/session"
)

// SessionHandler обрабатывает запросы к живым сессиям викторин
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler создает новый обработчик сессий
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSessionRequest представляет запрос на создание сессии
type CreateSessionRequest struct {
	QuizID uint   `json:"quiz_id" binding:"required"`
	Code   string `json:"code" binding:"omitempty,len=6"`
}

// CreateSession создает живую сессию по определению викторины.
// Если код не указан, он генерируется автоматически.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessionService.CreateSession(req.QuizID, req.Code)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSessionResponse(sess))
}

// ListSessions возвращает коды всех активных сессий
func (h *SessionHandler) ListSessions(c *gin.Context) {
	codes := h.sessionService.ListActive()
	c.JSON(http.StatusOK, gin.H{"sessions": codes, "count": len(codes)})
}

// GetSession возвращает текущее состояние сессии
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(sess))
}

// GetParticipants возвращает список участников сессии
func (h *SessionHandler) GetParticipants(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	participants := sess.Participants()
	responses := make([]dto.ParticipantResponse, 0, len(participants))
	for i := range participants {
		responses = append(responses, dto.NewParticipantResponse(&participants[i]))
	}
	c.JSON(http.StatusOK, gin.H{"participants": responses, "count": len(responses)})
}

// JoinRequest представляет запрос на присоединение к сессии
type JoinRequest struct {
	ParticipantID string `json:"participant_id" binding:"omitempty,max=64"`
	Name          string `json:"name" binding:"required,min=1,max=50"`
}

// JoinSession регистрирует участника в сессии.
// Если participant_id не указан, генерируется новый.
func (h *SessionHandler) JoinSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participantID := req.ParticipantID
	if participantID == "" {
		participantID = uuid.New().String()
	}

	if !sess.AddParticipant(participantID, req.Name) {
		c.JSON(http.StatusConflict, gin.H{"error": joinRejectReason(sess, participantID)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"participant_id": participantID,
		"session":        dto.NewSessionResponse(sess),
	})
}

// joinRejectReason восстанавливает причину отказа для сообщения клиенту.
// Проверки повторяют порядок AddParticipant; к моменту вызова состояние могло
// измениться, поэтому причина ориентировочная.
func joinRejectReason(sess *session.Session, participantID string) string {
	if sess.ParticipantCount() >= session.DefaultConfig().MaxParticipants {
		return "Session is full"
	}
	for _, p := range sess.Participants() {
		if p.ID == participantID {
			return "Participant already joined"
		}
	}
	return "Session already started, late join is disabled"
}

// LeaveRequest представляет запрос на выход участника из сессии
type LeaveRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

// LeaveSession помечает участника отключенным; его счет сохраняется
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.RemoveParticipant(req.ParticipantID)
	c.JSON(http.StatusOK, gin.H{"message": "Participant left"})
}

// StartSession запускает отсчет перед первым вопросом
func (h *SessionHandler) StartSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	if !sess.Start() {
		c.JSON(http.StatusConflict, gin.H{"error": "Session cannot be started: wrong state or no participants"})
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(sess))
}

// NextQuestion принудительно переводит сессию к следующему вопросу
func (h *SessionHandler) NextQuestion(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	if !sess.NextQuestion() {
		if sess.State() == session.StateFinished {
			c.JSON(http.StatusOK, gin.H{
				"message": "Quiz finished",
				"session": dto.NewSessionResponse(sess),
			})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not running"})
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(sess))
}

// PauseSession приостанавливает сессию во время вопроса
func (h *SessionHandler) PauseSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	if !sess.Pause() {
		c.JSON(http.StatusConflict, gin.H{"error": "Session cannot be paused in current state"})
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(sess))
}

// ResumeSession возобновляет приостановленную сессию
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	if !sess.Resume() {
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not paused"})
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(sess))
}

// AnswerRequest представляет ответ участника на текущий вопрос
type AnswerRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	Answer        *int   `json:"answer" binding:"required"`
}

// SubmitAnswer принимает ответ участника на текущий вопрос
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !sess.SubmitAnswer(req.ParticipantID, *req.Answer) {
		c.JSON(http.StatusConflict, gin.H{"error": "Answer rejected: not collecting, unknown participant or already answered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Answer accepted"})
}

// GetLeaderboard возвращает текущую таблицу лидеров сессии
func (h *SessionHandler) GetLeaderboard(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries := sess.Leaderboard(limit)
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// EndSession досрочно завершает сессию и возвращает итоговый отчет.
// Отчет архивируется в базу и кеш.
func (h *SessionHandler) EndSession(c *gin.Context) {
	code := c.MustGet("sessionCode").(string)

	report, err := h.sessionService.EndSession(code)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetReport возвращает архивированный отчет завершенной сессии
func (h *SessionHandler) GetReport(c *gin.Context) {
	code := c.MustGet("sessionCode").(string)

	report, err := h.sessionService.GetArchivedReport(code)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportReport экспортирует архивированный отчет сессии в CSV или XLSX
func (h *SessionHandler) ExportReport(c *gin.Context) {
	code := c.MustGet("sessionCode").(string)
	format := c.DefaultQuery("format", "csv")

	report, err := h.sessionService.GetArchivedReport(code)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	filename := fmt.Sprintf("session_%s_results_%s", code, time.Now().Format("2006-01-02"))

	switch format {
	case "xlsx":
		h.exportXLSX(c, report, filename)
	default:
		h.exportCSV(c, report, filename)
	}
}

// exportCSV экспортирует отчет в CSV с правильным экранированием спецсимволов
func (h *SessionHandler) exportCSV(c *gin.Context, report *entity.SessionReport, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write([]string{"Место", "Участник", "Очки", "Ответов", "Правильных", "Всего вопросов"})

	for _, e := range report.Entries {
		writer.Write([]string{
			strconv.Itoa(e.Rank),
			sanitizeForExcel(e.Name),
			strconv.Itoa(e.Score),
			strconv.Itoa(e.AnswersCount),
			strconv.Itoa(e.CorrectAnswers),
			strconv.Itoa(report.Stats.TotalQuestions),
		})
	}
}

// exportXLSX экспортирует отчет в Excel с использованием StreamWriter
func (h *SessionHandler) exportXLSX(c *gin.Context, report *entity.SessionReport, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Результаты"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[SessionHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := []interface{}{"Место", "Участник", "Очки", "Ответов", "Правильных", "Всего вопросов"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[SessionHandler] Ошибка записи заголовков: %v", err)
	}

	for i, e := range report.Entries {
		rowNum := i + 2
		cell := fmt.Sprintf("A%d", rowNum)
		row := []interface{}{e.Rank, sanitizeForExcel(e.Name), e.Score, e.AnswersCount, e.CorrectAnswers, report.Stats.TotalQuestions}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[SessionHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[SessionHandler] Ошибка при Flush: %v", err)
	}
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[SessionHandler] Ошибка записи Excel в response: %v", err)
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

// lookupSession извлекает сессию по коду из контекста; пишет ответ при ошибке
func (h *SessionHandler) lookupSession(c *gin.Context) (*session.Session, bool) {
	code := c.MustGet("sessionCode").(string)
	sess, err := h.sessionService.GetSession(code)
	if err != nil {
		h.handleSessionError(c, err)
		return nil, false
	}
	return sess, true
}

// handleSessionError преобразует ошибки сервисного слоя в HTTP-статусы
func (h *SessionHandler) handleSessionError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in SessionHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
