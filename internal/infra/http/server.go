package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/nathancole636-ui/my-lead-poet/internal/config"
	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
	"github.com/nathancole636-ui/my-lead-poet/internal/usecase"
)

func init() {
	// Event payloads round-trip through JSON request bodies and their
	// canonical hashes must recompute exactly, so numbers have to bind as
	// json.Number rather than float64.
	binding.EnableDecoderUseNumber = true
}

// Server is the gateway's HTTP surface: attestation serving and
// verification, log reads, bundle ingestion, checkpoints, inclusion proofs
// and epoch audits.
type Server struct {
	cfg config.Config
	r   *gin.Engine

	sequencer    *usecase.Sequencer
	bundleSvc    *usecase.BundleService
	proofs       *usecase.ProofService
	inclusion    *usecase.InclusionVerifier
	chains       *usecase.ChainVerifier
	attestations *usecase.AttestationService
	auditor      *usecase.EquivocationAuditor
	builder      *usecase.CheckpointBuilder

	entries     usecase.LogEntryRepository
	checkpoints usecase.CheckpointRepository
	blobs       usecase.CheckpointStore
	audits      usecase.EpochAuditRepository
	snapshots   SnapshotStore

	// Raw attestation envelope of this instance, served to verifiers.
	ownEnvelope []byte

	adminAPIKey string
}

// SnapshotStore adds the admin-facing write side to the reference-state
// repository.
type SnapshotStore interface {
	usecase.SnapshotRepository
	Save(ctx context.Context, snapshot domain.ChainSnapshot) error
}

type ServerDeps struct {
	Sequencer    *usecase.Sequencer
	Bundles      *usecase.BundleService
	Proofs       *usecase.ProofService
	Inclusion    *usecase.InclusionVerifier
	Chains       *usecase.ChainVerifier
	Attestations *usecase.AttestationService
	Auditor      *usecase.EquivocationAuditor
	Builder      *usecase.CheckpointBuilder

	Entries     usecase.LogEntryRepository
	Checkpoints usecase.CheckpointRepository
	Blobs       usecase.CheckpointStore
	Audits      usecase.EpochAuditRepository
	Snapshots   SnapshotStore

	OwnEnvelope []byte
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:          cfg,
		r:            r,
		sequencer:    deps.Sequencer,
		bundleSvc:    deps.Bundles,
		proofs:       deps.Proofs,
		inclusion:    deps.Inclusion,
		chains:       deps.Chains,
		attestations: deps.Attestations,
		auditor:      deps.Auditor,
		builder:      deps.Builder,
		entries:      deps.Entries,
		checkpoints:  deps.Checkpoints,
		blobs:        deps.Blobs,
		audits:       deps.Audits,
		snapshots:    deps.Snapshots,
		ownEnvelope:  deps.OwnEnvelope,
		adminAPIKey:  cfg.AdminAPIKey,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		bootID := ""
		if s.sequencer != nil {
			bootID = s.sequencer.BootID()
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "boot_id": bootID})
	})

	v1 := s.r.Group("/v1")
	{
		v1.GET("/attestation", s.handleOwnAttestation)
		v1.POST("/attestation/verify", s.handleVerifyAttestation)

		v1.GET("/log/entries", s.handleListEntries)
		v1.GET("/log/entries/:event_hash", s.handleGetEntry)
		v1.GET("/log/verify", s.handleVerifyChain)

		v1.POST("/bundles", s.handleSubmitBundle)
		v1.GET("/bundles/:subnet_id/:epoch_id/:actor_id", s.handleGetBundle)

		v1.GET("/checkpoints/latest", s.handleLatestCheckpoint)
		v1.GET("/checkpoints/:tx_id", s.handleGetCheckpoint)

		v1.GET("/proofs/inclusion/:event_hash", s.handleInclusionProof)
		v1.POST("/proofs/verify", s.handleVerifyInclusion)

		v1.GET("/epochs/:subnet_id/:epoch_id/audit", s.handleGetAudit)

		// Admin surface.
		v1.POST("/events", s.handleAppendEvent)
		v1.POST("/checkpoints/run", s.handleRunCheckpoint)
		v1.POST("/snapshots", s.handleSaveSnapshot)
		v1.POST("/epochs/:subnet_id/:epoch_id/audit", s.handleRunAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Code: "not_found", Message: "no such route"})
	})
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
