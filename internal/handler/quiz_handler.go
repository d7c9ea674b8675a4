package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
	"github.com/yourusername/livequiz-api/internal/service"
)

// QuizHandler обрабатывает запросы, связанные с определениями викторин
type QuizHandler struct {
	quizService *service.QuizService
}

// NewQuizHandler создает новый обработчик викторин
func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// QuestionRequest представляет вопрос в запросе на создание викторины
type QuestionRequest struct {
	Text          string   `json:"text" binding:"required,min=3,max=500"`
	Options       []string `json:"options" binding:"required,min=2,max=6"`
	CorrectOption int      `json:"correct_option" binding:"min=0"`
	Explanation   string   `json:"explanation" binding:"omitempty,max=500"`
}

// CreateQuizRequest представляет запрос на создание викторины
type CreateQuizRequest struct {
	Title     string                  `json:"title" binding:"required,min=3,max=100"`
	Settings  *entity.SessionSettings `json:"settings"`
	Questions []QuestionRequest       `json:"questions" binding:"required,min=1,dive"`
}

// CreateQuiz обрабатывает запрос на создание викторины
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz := &entity.Quiz{Title: req.Title}
	if req.Settings != nil {
		quiz.Settings = *req.Settings
	} else {
		quiz.Settings = entity.DefaultSessionSettings()
	}
	for _, q := range req.Questions {
		quiz.Questions = append(quiz.Questions, entity.Question{
			Text:          q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Explanation:   q.Explanation,
		})
	}

	if err := h.quizService.CreateQuiz(quiz); err != nil {
		h.handleQuizError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewQuizResponse(quiz, true))
}

// GetQuiz возвращает информацию о викторине.
// С параметром ?include_questions=true в ответ включаются вопросы
// (без правильных вариантов).
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quizID := c.MustGet("quizID").(uint)
	includeQuestions := c.Query("include_questions") == "true"

	var (
		quiz *entity.Quiz
		err  error
	)
	if includeQuestions {
		quiz, err = h.quizService.GetQuizWithQuestions(quizID)
	} else {
		quiz, err = h.quizService.GetQuizByID(quizID)
	}
	if err != nil {
		h.handleQuizError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuizResponse(quiz, includeQuestions))
}

// ListQuizzes возвращает список викторин с пагинацией
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}

	quizzes, err := h.quizService.ListQuizzes(perPage, (page-1)*perPage)
	if err != nil {
		h.handleQuizError(c, err)
		return
	}

	responses := make([]*dto.QuizResponse, 0, len(quizzes))
	for i := range quizzes {
		responses = append(responses, dto.NewQuizResponse(&quizzes[i], false))
	}

	c.JSON(http.StatusOK, gin.H{
		"quizzes":  responses,
		"page":     page,
		"per_page": perPage,
	})
}

// DeleteQuiz удаляет викторину вместе с вопросами
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	quizID := c.MustGet("quizID").(uint)

	if err := h.quizService.DeleteQuiz(quizID); err != nil {
		h.handleQuizError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Quiz deleted"})
}

// handleQuizError преобразует ошибки сервисного слоя в HTTP-статусы
func (h *QuizHandler) handleQuizError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in QuizHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
