package session

import (
	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// SubmittedAnswer представляет ответ участника, собранный в окне приема
// текущего вопроса
type SubmittedAnswer struct {
	ParticipantID   string  `json:"participant_id"`
	Answer          int     `json:"answer"`
	ResponseTimeSec float64 `json:"response_time"`
}

// ParticipantResult представляет результат одного участника по одному вопросу
type ParticipantResult struct {
	ParticipantID   string  `json:"participant_id"`
	Name            string  `json:"name"`
	Answer          int     `json:"answer"`
	Correct         bool    `json:"correct"`
	Points          int     `json:"points"`
	ResponseTimeSec float64 `json:"response_time"`
}

// QuestionResults представляет агрегированные результаты одного вопроса
type QuestionResults struct {
	QuestionIndex      int                 `json:"question_index"`
	CorrectAnswer      int                 `json:"correct_answer"`
	Explanation        string              `json:"explanation,omitempty"`
	TotalParticipants  int                 `json:"total_participants"`
	TotalResponses     int                 `json:"total_responses"`
	CorrectResponses   int                 `json:"correct_responses"`
	IncorrectResponses int                 `json:"incorrect_responses"`
	AnswerDistribution map[int]int         `json:"answer_distribution"`
	ParticipantResults []ParticipantResult `json:"participant_results"`
}

// CalculatePoints рассчитывает очки за один ответ.
// Правильный ответ приносит базовые очки плюс, если включен бонус за скорость,
// floor(max_bonus * max(0, limit - latency) / limit). Латентность больше
// лимита прижимает бонус к нулю, отрицательным он не бывает.
// Неправильный ответ всегда дает 0.
func CalculatePoints(settings entity.SessionSettings, correct bool, responseTimeSec float64) int {
	if !correct {
		return 0
	}

	points := settings.PointsForCorrect
	if settings.SpeedBonusEnabled && settings.QuestionTimeLimitSec > 0 {
		limit := float64(settings.QuestionTimeLimitSec)
		remaining := limit - responseTimeSec
		if remaining < 0 {
			remaining = 0
		}
		// int() усекает неотрицательное значение вниз
		bonus := int(float64(settings.MaxSpeedBonus) * remaining / limit)
		points += bonus
	}

	return points
}

// ScoreQuestion вычисляет результаты вопроса по собранным ответам.
// Чистая функция: не трогает состояние сессии, тотальна на своей области
// входных значений. Участники без ответа не получают записи и очков,
// но учитываются в totalParticipants.
func ScoreQuestion(
	questionIndex int,
	question *entity.Question,
	settings entity.SessionSettings,
	answers []SubmittedAnswer,
	names map[string]string,
	totalParticipants int,
) *QuestionResults {
	results := &QuestionResults{
		QuestionIndex:      questionIndex,
		CorrectAnswer:      question.CorrectOption,
		Explanation:        question.Explanation,
		TotalParticipants:  totalParticipants,
		TotalResponses:     len(answers),
		AnswerDistribution: make(map[int]int),
		ParticipantResults: make([]ParticipantResult, 0, len(answers)),
	}

	for _, a := range answers {
		correct := question.IsCorrect(a.Answer)
		points := CalculatePoints(settings, correct, a.ResponseTimeSec)

		if correct {
			results.CorrectResponses++
		} else {
			results.IncorrectResponses++
		}

		results.AnswerDistribution[a.Answer]++
		results.ParticipantResults = append(results.ParticipantResults, ParticipantResult{
			ParticipantID:   a.ParticipantID,
			Name:            names[a.ParticipantID],
			Answer:          a.Answer,
			Correct:         correct,
			Points:          points,
			ResponseTimeSec: a.ResponseTimeSec,
		})
	}

	return results
}
