package messaging

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway is notified when a proposal is accepted so a chat channel can be
// opened between the patient and the chosen doctor. The settlement
// coordinator emits this signal exactly once per acceptance; chat transport
// itself lives outside this service.
type Gateway interface {
	OpenChannel(ctx context.Context, caseID, patientID, doctorID uuid.UUID) error
}

// LogGateway is the in-process implementation: it records the signal and
// leaves channel creation to the chat service consuming the log stream.
type LogGateway struct {
	log *zap.Logger
}

func NewLogGateway(log *zap.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) OpenChannel(ctx context.Context, caseID, patientID, doctorID uuid.UUID) error {
	g.log.Info("chat channel requested",
		zap.String("case_id", caseID.String()),
		zap.String("patient_id", patientID.String()),
		zap.String("doctor_id", doctorID.String()),
	)
	return nil
}
