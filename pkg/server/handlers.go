package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/generator"
	"github.com/shouni/gemini-mask-kit/pkg/mask"
)

type imageSize struct {
	Width  int `json:"width" binding:"required,min=1"`
	Height int `json:"height" binding:"required,min=1"`
}

type createSessionRequest struct {
	Images []imageSize `json:"images" binding:"required,min=1,dive"`
}

type strokeRequest struct {
	Index       int                  `json:"index" binding:"min=0"`
	Points      []domain.StrokePoint `json:"points" binding:"required,min=1"`
	BrushRadius float32              `json:"brush_radius" binding:"required,gt=0"`
	Erase       bool                 `json:"erase"`
	// Extend が true の場合は直前のストロークに点を追加する（ドラッグの継続）
	Extend bool `json:"extend"`
}

type maskResponse struct {
	SourceRegionID string              `json:"source_region_id,omitempty"`
	Image          []byte              `json:"image,omitempty"`
	Regions        []domain.RegionInfo `json:"regions"`
}

type commitResponse struct {
	Index     int          `json:"index"`
	Available bool         `json:"available"`
	Empty     bool         `json:"empty"`
	Mask      maskResponse `json:"mask"`
}

type maskEvent struct {
	SessionID string              `json:"session_id"`
	Index     int                 `json:"index"`
	Empty     bool                `json:"empty"`
	Regions   []domain.RegionInfo `json:"regions,omitempty"`
}

type sourceImage struct {
	Data    []byte `json:"data"`
	URL     string `json:"url"`
	Purpose string `json:"purpose"`
}

type variationsRequest struct {
	SessionID  string        `json:"session_id"`
	Prompt     string        `json:"prompt" binding:"required"`
	Images     []sourceImage `json:"images" binding:"required,min=1"`
	Variations int           `json:"variations" binding:"min=0,max=12"`
}

type variationResponse struct {
	Image      []byte `json:"image"`
	MimeType   string `json:"mime_type"`
	Tier       string `json:"tier"`
	Seed       int64  `json:"seed"`
	Duplicate  bool   `json:"duplicate"`
	SourceSlot int    `json:"source_slot"`
}

type seedResponse struct {
	Seed   uint32 `json:"seed"`
	Locked bool   `json:"locked"`
}

type lockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws, err := s.newWorkspace(c.Request.Context(), req.Images)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ws.id, "images": len(req.Images)})
}

func (s *Server) deleteSession(c *gin.Context) {
	ws, ok := s.removeWorkspace(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	ws.close()
	if err := s.deps.Regions.Clear(c.Request.Context(), ws.id); err != nil {
		slog.WarnContext(c.Request.Context(), "領域メタデータの削除に失敗しました", "session", ws.id, "error", err)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addImage(c *gin.Context) {
	ws, ok := s.lookup(c)
	if !ok {
		return
	}
	var req imageSize
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	index, err := s.addEditor(ws, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": index})
}

func (s *Server) deleteImage(c *gin.Context) {
	ws, ok := s.lookup(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || !ws.deleteImage(index) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) applyStroke(c *gin.Context) {
	ws, ok := s.lookup(c)
	if !ok {
		return
	}
	var req strokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	editor, ok := ws.editor(req.Index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	ctx := c.Request.Context()
	if req.Extend {
		extended, err := editor.ExtendStroke(ctx, req.Points)
		if err != nil {
			s.sessionError(c, err)
			return
		}
		if extended {
			c.JSON(http.StatusOK, gin.H{"extended": true})
			return
		}
	}
	stroke := domain.Stroke{Points: req.Points, BrushRadius: req.BrushRadius, Erase: req.Erase}
	if err := editor.ApplyStroke(ctx, stroke); err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extended": false})
}

func (s *Server) undo(c *gin.Context) {
	_, editor, ok := s.lookupEditor(c)
	if !ok {
		return
	}
	undone, err := editor.Undo(c.Request.Context())
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"undone": undone})
}

func (s *Server) clear(c *gin.Context) {
	ws, editor, ok := s.lookupEditor(c)
	if !ok {
		return
	}
	if err := editor.Clear(c.Request.Context()); err != nil {
		s.sessionError(c, err)
		return
	}
	ws.storeMask(editor, domain.Mask{})
	c.Status(http.StatusNoContent)
}

func (s *Server) commit(c *gin.Context) {
	ws, editor, ok := s.lookupEditor(c)
	if !ok {
		return
	}
	res, err := editor.Commit(c.Request.Context())
	if err != nil {
		s.sessionError(c, err)
		return
	}
	if res.Available {
		ws.storeMask(editor, res.Mask)
	}

	index, _ := strconv.Atoi(c.Query("index"))
	c.JSON(http.StatusOK, commitResponse{
		Index:     index,
		Available: res.Available,
		Empty:     res.Mask.IsEmpty(),
		Mask: maskResponse{
			SourceRegionID: res.Mask.SourceRegionID,
			Image:          res.Mask.Image,
			Regions:        nonNil(res.Mask.Regions),
		},
	})
}

func (s *Server) listRegions(c *gin.Context) {
	ws, ok := s.lookup(c)
	if !ok {
		return
	}
	regions, err := s.deps.Regions.List(c.Request.Context(), ws.id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": nonNil(regions)})
}

func (s *Server) runVariations(c *gin.Context) {
	var req variationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	genReq := domain.GenerationRequest{Prompt: req.Prompt, Variations: req.Variations}
	for _, img := range req.Images {
		if len(img.Data) == 0 && img.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "each image needs data or url"})
			return
		}
		genReq.Images = append(genReq.Images, domain.SourceImage{Data: img.Data, URL: img.URL, Purpose: img.Purpose})
	}
	if req.SessionID != "" {
		ws, ok := s.workspace(req.SessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		genReq.Masks = ws.snapshot()
	}

	results, err := s.deps.Runner.Run(c.Request.Context(), genReq)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, generator.ErrNoVariationsProduced):
			status = http.StatusBadGateway
		case errors.Is(err, generator.ErrPrimaryImageUnavailable):
			status = http.StatusBadRequest
		}
		slog.WarnContext(c.Request.Context(), "バリエーション生成に失敗しました", "error", err)
		c.JSON(status, gin.H{"error": err.Error(), "kind": domain.ErrorKind(err)})
		return
	}

	out := make([]variationResponse, 0, len(results))
	for _, r := range results {
		out = append(out, variationResponse{
			Image:      r.ImageBytes,
			MimeType:   r.MimeType,
			Tier:       r.TierLabel,
			Seed:       r.Seed,
			Duplicate:  r.Duplicate,
			SourceSlot: r.SourceSlot,
		})
	}
	c.JSON(http.StatusOK, gin.H{"variations": out})
}

func (s *Server) getSeed(c *gin.Context) {
	c.JSON(http.StatusOK, seedResponse{Seed: s.deps.Seeds.Current(), Locked: s.deps.Seeds.IsLocked()})
}

func (s *Server) nextSeed(c *gin.Context) {
	seed := s.deps.Seeds.CurrentOrNewSeed()
	c.JSON(http.StatusOK, seedResponse{Seed: seed, Locked: s.deps.Seeds.IsLocked()})
}

func (s *Server) lockSeed(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Seeds.SetLocked(*req.Locked)
	c.JSON(http.StatusOK, seedResponse{Seed: s.deps.Seeds.Current(), Locked: *req.Locked})
}

func (s *Server) lookup(c *gin.Context) (*workspace, bool) {
	ws, ok := s.workspace(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return ws, ok
}

// lookupEditor は ?index= のエディターを返します。省略時は 0 です。
func (s *Server) lookupEditor(c *gin.Context) (*workspace, *mask.Session, bool) {
	ws, ok := s.lookup(c)
	if !ok {
		return nil, nil, false
	}
	index, err := strconv.Atoi(c.DefaultQuery("index", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return nil, nil, false
	}
	editor, ok := ws.editor(index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return nil, nil, false
	}
	return ws, editor, true
}

func (s *Server) sessionError(c *gin.Context, err error) {
	if errors.Is(err, mask.ErrSessionClosed) {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func nonNil(regions []domain.RegionInfo) []domain.RegionInfo {
	if regions == nil {
		return []domain.RegionInfo{}
	}
	return regions
}
