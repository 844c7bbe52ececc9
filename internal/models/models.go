package models

import "time"

// Backdrop generation status values
const (
	BackdropReady      = "ready"
	BackdropGenerating = "generating"
)

// Booth represents one photo session collecting uploads and producing fauxtos
type Booth struct {
	Slug            string    `json:"slug"`
	DisplayName     string    `json:"display_name"`
	Description     string    `json:"description"`
	IdealMemberSize int       `json:"ideal_member_size"`
	SingleUpload    bool      `json:"single_upload"`
	BackdropPath    *string   `json:"backdrop_path,omitempty"`
	BackdropStatus  string    `json:"backdrop_status"`
	DisplayStatus   string    `json:"display_status"`
	UploadedCount   int       `json:"uploaded_count"`
	FauxtoCount     int       `json:"fauxto_count"`
	InflightCount   int       `json:"inflight_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Upload represents one guest-submitted selfie
type Upload struct {
	ID        string    `json:"id"`
	BoothSlug string    `json:"booth_slug"`
	Identity  string    `json:"identity"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Fauxto represents one generated group image; FilePath stays nil until
// the composite job finishes
type Fauxto struct {
	ID        string    `json:"id"`
	BoothSlug string    `json:"booth_slug"`
	FilePath  *string   `json:"file_path,omitempty"`
	JobID     *string   `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FauxtoMember maps a fauxto to one upload and its submitting identity
type FauxtoMember struct {
	ID        int64     `json:"id"`
	FauxtoID  string    `json:"fauxto_id"`
	UploadID  string    `json:"upload_id"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectoryEntry is the registry row for one booth
type DirectoryEntry struct {
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// GalleryFauxto is the denormalized "fauxto I appear in" row for an identity
type GalleryFauxto struct {
	Identity         string    `json:"-"`
	FauxtoID         string    `json:"fauxto_id"`
	BoothSlug        string    `json:"booth_slug"`
	BoothDisplayName string    `json:"booth_display_name"`
	FilePath         string    `json:"file_path"`
	CreatedAt        time.Time `json:"created_at"`
}

// Job kinds and statuses
const (
	JobKindBackdrop = "backdrop"
	JobKindFauxto   = "fauxto"

	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Job is the persisted state of one durable multi-step job. Step is the
// checkpointed current step; Checkpoint carries the previous step's output
// so a recovered job resumes without re-executing finished steps.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	BoothSlug  string    `json:"booth_slug"`
	FauxtoID   *string   `json:"fauxto_id,omitempty"`
	Step       string    `json:"step"`
	Checkpoint string    `json:"-"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  *string   `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
