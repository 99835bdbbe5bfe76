package httpapi

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/server/similarity"
)

type compareCodeRequest struct {
	Code1 string `json:"code1"`
	Code2 string `json:"code2"`
}

func (s *HTTPServer) compareCode(c *gin.Context) {
	var req compareCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	c.JSON(http.StatusOK, gin.H{"similarity": similarity.Code(req.Code1, req.Code2)})
}

func (s *HTTPServer) compareImages(c *gin.Context) {
	a, err := formFingerprint(c, "image1")
	if err != nil {
		s.imageError(c, err)
		return
	}
	b, err := formFingerprint(c, "image2")
	if err != nil {
		s.imageError(c, err)
		return
	}

	score, err := similarity.Images(a, b)
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"similarity": score})
}

func (s *HTTPServer) imageError(c *gin.Context, err error) {
	if isTooLarge(err) {
		s.writeError(c, err, "")
		return
	}
	badRequest(c, "two decodable images are required")
}

func formFingerprint(c *gin.Context, field string) (similarity.Fingerprint, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return similarity.Fingerprint{}, err
	}
	return fingerprintHeader(fh)
}

func fingerprintHeader(fh *multipart.FileHeader) (similarity.Fingerprint, error) {
	f, err := fh.Open()
	if err != nil {
		return similarity.Fingerprint{}, err
	}
	defer f.Close()
	return similarity.FingerprintReader(f)
}
