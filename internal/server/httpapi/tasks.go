package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *HTTPServer) uploadZip(c *gin.Context) {
	fh, err := c.FormFile("zipFile")
	if err != nil {
		if isTooLarge(err) {
			s.writeError(c, err, "")
			return
		}
		badRequest(c, "please select a zip file")
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	defer f.Close()

	taskID, err := s.tasks.UploadZip(c.Request.Context(), currentUserID(c), f, fh.Size)
	if err != nil {
		s.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "archive uploaded, scan started", "taskId": taskID})
}

func (s *HTTPServer) getTask(c *gin.Context) {
	id, ok := pathID(c, "taskId")
	if !ok {
		return
	}

	task, err := s.tasks.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		s.writeError(c, err, "task not found")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *HTTPServer) listUserTasks(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	list, err := s.tasks.ListByUser(c.Request.Context(), currentUserID(c), userID)
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, list)
}
