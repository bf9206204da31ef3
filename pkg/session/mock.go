package session

import (
	"context"

	"github.com/glimps-re/pescan/pkg/datamodel"
)

var _ Scanner = &MockScanner{}

type MockScanner struct {
	ScanMock func(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error)
}

func (m *MockScanner) Scan(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error) {
	if m.ScanMock != nil {
		return m.ScanMock(ctx, file)
	}
	panic("Scan not implemented")
}
