package api

import (
	"github.com/pwa-modeller/overlay/internal/codec"
	"github.com/pwa-modeller/overlay/internal/model"
	"github.com/pwa-modeller/overlay/internal/overlay"
	"github.com/pwa-modeller/overlay/internal/service"
)

// OverlaySession is the slice of the service layer the handlers
// consume. *service.Session satisfies it.
type OverlaySession interface {
	LoadModel(data []byte) (*service.ModelInfo, error)
	Info() *service.ModelInfo
	Signature() string
	Collisions() ([]model.Collision, error)

	UpsertEntry(input overlay.UpsertInput) (overlay.Entry, error)
	GetEntry(entryID string) (overlay.Entry, bool)
	ListEntries(filterExpr string) ([]overlay.Entry, error)
	SetTag(entryID, key string, value any) error
	SetTags(entryID string, tags overlay.Tags) error
	RemoveTag(entryID, key string) error
	DeleteEntry(entryID string) error

	Resolve() (*overlay.Resolution, error)
	Effective(target model.TargetRef) (*overlay.Effective, error)
	Rebind(entryID string, target model.TargetRef, preferUnique bool) (*overlay.RebindResult, error)

	Import(format string, data []byte, opts codec.ImportOptions) (*codec.ImportResult, error)
	Export(format string, tagKeys []string) ([]byte, string, error)
	Status() service.ExportStatus
}

var _ OverlaySession = (*service.Session)(nil)
