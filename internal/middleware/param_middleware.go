package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Код сессии: 6 символов алфавита без неоднозначных I, O, 0, 1
var sessionCodePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)

// ExtractUintParam создает middleware для извлечения и валидации числового параметра URL.
// paramName - имя параметра в URL (например, "id").
// contextKey - ключ, под которым значение будет сохранено в контексте Gin.
func ExtractUintParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param(paramName)
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", paramName)})
			c.Abort()
			return
		}
		c.Set(contextKey, uint(id))
		c.Next()
	}
}

// ExtractSessionCode создает middleware для валидации кода сессии в URL.
// Код нормализуется к верхнему регистру и сохраняется в контексте Gin
// под ключом contextKey.
func ExtractSessionCode(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param(paramName)))
		if !sessionCodePattern.MatchString(code) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session code"})
			c.Abort()
			return
		}
		c.Set(contextKey, code)
		c.Next()
	}
}
