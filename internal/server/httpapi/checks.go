package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type checkRequest struct {
	URL string `json:"url"`
}

type reportRequest struct {
	ResultID json.Number `json:"resultId"`
}

func (s *HTTPServer) checkExternalURL(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	result, err := s.checks.CheckURL(c.Request.Context(), currentUserID(c), req.URL)
	if err != nil {
		s.writeFailure(c, err, "", "check failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (s *HTTPServer) generateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "resultId is required"})
		return
	}
	id, err := req.ResultID.Int64()
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "resultId is required"})
		return
	}

	reportURL, err := s.reports.GenerateReport(c.Request.Context(), id)
	if err != nil {
		s.writeFailure(c, err, "check result not found", "report generation failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reportUrl": reportURL})
}

func (s *HTTPServer) downloadReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	_, path, err := s.reports.ReportFile(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "report not found")
		return
	}

	c.FileAttachment(path, strconv.FormatInt(id, 10)+".pdf")
}
