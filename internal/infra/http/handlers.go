package http

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/usecase"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorResponse{Code: "already_exists", Message: err.Error()})
	case errors.Is(err, domain.ErrMalformedInput):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
	case errors.Is(err, domain.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "signature_invalid", Message: err.Error()})
	case errors.Is(err, domain.ErrCertChainInvalid):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "cert_chain_invalid", Message: err.Error()})
	case errors.Is(err, domain.ErrDebugModeRejected):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "debug_mode_rejected", Message: err.Error()})
	case errors.Is(err, domain.ErrChainBroken):
		c.JSON(http.StatusConflict, errorResponse{Code: "chain_broken", Message: err.Error()})
	case errors.Is(err, domain.ErrMerkleMismatch):
		c.JSON(http.StatusConflict, errorResponse{Code: "merkle_mismatch", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, errorResponse{Code: "unauthorized", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "internal", Message: err.Error()})
	}
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		c.JSON(http.StatusForbidden, errorResponse{Code: "unauthorized", Message: "admin API disabled"})
		return false
	}
	provided := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.adminAPIKey)) != 1 {
		c.JSON(http.StatusForbidden, errorResponse{Code: "unauthorized", Message: "bad admin key"})
		return false
	}
	return true
}

// --- attestation ---

func (s *Server) handleOwnAttestation(c *gin.Context) {
	if len(s.ownEnvelope) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{Code: "not_found", Message: "no attestation envelope configured"})
		return
	}
	pubkey := ""
	if s.sequencer != nil {
		pubkey = s.sequencer.PublicKeyHex()
	}
	c.JSON(http.StatusOK, gin.H{
		"envelope_base64": base64.StdEncoding.EncodeToString(s.ownEnvelope),
		"enclave_pubkey":  pubkey,
	})
}

type verifyAttestationRequest struct {
	EnvelopeBase64    string `json:"envelope_base64" binding:"required"`
	Role              string `json:"role"`
	RequireProduction *bool  `json:"require_production"`
}

func (s *Server) handleVerifyAttestation(c *gin.Context) {
	var req verifyAttestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.EnvelopeBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: "envelope is not base64"})
		return
	}
	role := req.Role
	if role == "" {
		role = "gateway"
	}
	requireProduction := true
	if req.RequireProduction != nil {
		requireProduction = *req.RequireProduction
	}
	doc, err := s.attestations.VerifyEnvelope(c.Request.Context(), raw, role, requireProduction)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"module_id":     doc.ModuleID,
		"timestamp":     doc.Timestamp,
		"code_identity": doc.CodeIdentity(),
		"debug_mode":    doc.DebugMode,
		"public_key":    base64.StdEncoding.EncodeToString(doc.PublicKey),
	})
}

// --- log ---

func (s *Server) handleListEntries(c *gin.Context) {
	bootID := c.Query("boot_id")
	if bootID == "" && s.sequencer != nil {
		bootID = s.sequencer.BootID()
	}
	if bootID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: "boot_id is required"})
		return
	}
	fromSeq := queryInt(c, "from", 1)
	toSeq := queryInt(c, "to", 0)
	entries, err := s.entries.ListByBoot(c.Request.Context(), bootID, fromSeq, toSeq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boot_id": bootID, "entries": entries})
}

func (s *Server) handleGetEntry(c *gin.Context) {
	entry, err := s.entries.GetByEventHash(c.Request.Context(), c.Param("event_hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleVerifyChain(c *gin.Context) {
	bootID := c.Query("boot_id")
	if bootID == "" && s.sequencer != nil {
		bootID = s.sequencer.BootID()
	}
	count, err := s.chains.VerifyBoot(c.Request.Context(), bootID)
	if err != nil {
		if errors.Is(err, domain.ErrChainBroken) || errors.Is(err, domain.ErrSignatureInvalid) {
			c.JSON(http.StatusOK, gin.H{"boot_id": bootID, "valid": false, "reason": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boot_id": bootID, "valid": true, "entries": count})
}

type appendEventRequest struct {
	EventType string         `json:"event_type" binding:"required"`
	Payload   map[string]any `json:"payload"`
}

func (s *Server) handleAppendEvent(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	entry, err := s.sequencer.Append(c.Request.Context(), usecase.AppendRequest{
		EventType: domain.EventType(req.EventType),
		Payload:   req.Payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// --- bundles ---

func (s *Server) handleSubmitBundle(c *gin.Context) {
	var bundle domain.WeightBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	stored, err := s.bundleSvc.Submit(c.Request.Context(), bundle)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleGetBundle(c *gin.Context) {
	subnetID, ok1 := pathInt(c, "subnet_id")
	epochID, ok2 := pathInt(c, "epoch_id")
	if !ok1 || !ok2 {
		return
	}
	bundle, err := s.bundleSvc.Bundles().Get(c.Request.Context(), subnetID, epochID, c.Param("actor_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// --- checkpoints ---

func (s *Server) handleLatestCheckpoint(c *gin.Context) {
	txID, err := s.checkpoints.LatestTxID(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	s.renderCheckpoint(c, txID)
}

func (s *Server) handleGetCheckpoint(c *gin.Context) {
	s.renderCheckpoint(c, c.Param("tx_id"))
}

func (s *Server) renderCheckpoint(c *gin.Context, txID string) {
	full := c.Query("full") == "true"
	if full {
		cp, err := s.blobs.Get(c.Request.Context(), txID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cp)
		return
	}
	header, err := s.checkpoints.GetHeader(c.Request.Context(), txID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txID, "header": header})
}

func (s *Server) handleRunCheckpoint(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	bootID, watermark := s.sequencer.Watermark()
	cp, err := s.builder.Run(c.Request.Context(), bootID, watermark)
	if err != nil {
		writeError(c, err)
		return
	}
	if cp == nil {
		c.JSON(http.StatusOK, gin.H{"sealed": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sealed": true, "tx_id": cp.TxID, "entry_count": cp.Header.EntryCount})
}

// --- proofs ---

func (s *Server) handleInclusionProof(c *gin.Context) {
	proof, header, err := s.proofs.Prove(c.Request.Context(), c.Param("event_hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": proof, "checkpoint_header": header})
}

type verifyInclusionRequest struct {
	Entry             domain.SignedLogEntry   `json:"entry" binding:"required"`
	Proof             domain.InclusionProof   `json:"proof" binding:"required"`
	Header            domain.CheckpointHeader `json:"checkpoint_header" binding:"required"`
	AttestedPubKeyHex string                  `json:"attested_pubkey,omitempty"`
}

func (s *Server) handleVerifyInclusion(c *gin.Context) {
	var req verifyInclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	ok, reason := s.inclusion.Verify(req.Entry, req.Proof, req.Header, req.AttestedPubKeyHex)
	c.JSON(http.StatusOK, gin.H{"valid": ok, "reason": reason})
}

// --- snapshots and audits ---

func (s *Server) handleSaveSnapshot(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var snapshot domain.ChainSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	if err := s.snapshots.Save(c.Request.Context(), snapshot); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved": true})
}

type runAuditRequest struct {
	PrimaryActor string `json:"primary_actor" binding:"required"`
}

func (s *Server) handleRunAudit(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	subnetID, ok1 := pathInt(c, "subnet_id")
	epochID, ok2 := pathInt(c, "epoch_id")
	if !ok1 || !ok2 {
		return
	}
	var req runAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: err.Error()})
		return
	}
	result, err := s.auditor.AuditEpoch(c.Request.Context(), subnetID, epochID, req.PrimaryActor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetAudit(c *gin.Context) {
	subnetID, ok1 := pathInt(c, "subnet_id")
	epochID, ok2 := pathInt(c, "epoch_id")
	if !ok1 || !ok2 {
		return
	}
	result, err := s.audits.Get(c.Request.Context(), subnetID, epochID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- helpers ---

func queryInt(c *gin.Context, name string, def int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func pathInt(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "malformed_input", Message: name + " must be an integer"})
		return 0, false
	}
	return v, true
}
