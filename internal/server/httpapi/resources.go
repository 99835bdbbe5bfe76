package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/services"
)

const resourceNotFound = "resource not found"

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) uploadResource(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			s.writeError(c, err, "")
			return
		}
		badRequest(c, "please select a file")
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	defer f.Close()

	id, err := s.resources.Upload(c.Request.Context(), currentUserID(c),
		c.PostForm("resourceType"), c.PostForm("authorizationStatus"), fileUpload(fh, f))
	if err != nil {
		s.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file uploaded", "resourceId": id})
}

func (s *HTTPServer) createAsset(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			s.writeError(c, err, "")
			return
		}
		badRequest(c, "multipart form expected")
		return
	}

	var info services.AssetInfo
	if raw := c.PostForm("assetInfo"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			badRequest(c, "assetInfo must be a JSON object")
			return
		}
	}

	headers := form.File["files"]
	uploads := make([]services.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(c, err, "")
			return
		}
		defer f.Close()
		uploads = append(uploads, fileUpload(fh, f))
	}

	out, err := s.resources.CreateAsset(c.Request.Context(), currentUserID(c), info, c.PostForm("trademarkRegNo"), uploads)
	if err != nil {
		s.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "asset created",
		"resourceIds": out.ResourceIDs,
		"certificate": out.Certificate,
	})
}

func fileUpload(fh *multipart.FileHeader, f io.Reader) services.FileUpload {
	return services.FileUpload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}
}

func (s *HTTPServer) listResources(c *gin.Context) {
	var f models.ResourceFilter
	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			badRequest(c, "filters must be a JSON object")
			return
		}
	}
	if v := c.Query("searchKeyword"); v != "" {
		f.SearchKeyword = v
	}
	if v := c.Query("project"); v != "" {
		f.Project = v
	}
	if v := c.Query("type"); v != "" {
		f.Type = v
	}
	if v := c.Query("assetLevel"); v != "" {
		f.AssetLevel = v
	}

	list, err := s.resources.List(c.Request.Context(), currentUserID(c), f)
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *HTTPServer) resourceSummary(c *gin.Context) {
	summary, err := s.resources.Summary(c.Request.Context())
	if err != nil {
		s.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *HTTPServer) resourceDetail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := s.resources.Detail(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		s.writeError(c, err, resourceNotFound)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *HTTPServer) resourceContent(c *gin.Context) {
	s.streamResource(c, "inline")
}

func (s *HTTPServer) resourceDownload(c *gin.Context) {
	s.streamResource(c, "attachment")
}

func (s *HTTPServer) streamResource(c *gin.Context, disposition string) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, rc, err := s.resources.Content(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "file not found")
		return
	}
	defer rc.Close()

	size := res.FileSize
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, res.FileType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`%s; filename="%s"`, disposition, url.PathEscape(res.Filename)),
	})
}

func (s *HTTPServer) deleteResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.resources.Delete(c.Request.Context(), id, currentUserID(c)); err != nil {
		s.writeError(c, err, resourceNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "asset deleted"})
}

func (s *HTTPServer) certifyResource(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := s.resources.Certify(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		s.writeFailure(c, err, resourceNotFound, "certification failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "resource certified", "asset": res})
}

func (s *HTTPServer) verifyCertificate(c *gin.Context) {
	certNo := c.Param("certificateNo")

	found, err := s.resources.Verify(c.Request.Context(), certNo)
	if err != nil {
		s.writeFailure(c, err, "certificate not found", "verification failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "certificateNo": certNo, "resources": found})
}
