package proposal

import "errors"

var (
	ErrProposalNotFound     = errors.New("proposal not found")
	ErrProposalCaseMismatch = errors.New("proposal does not belong to this case")
	ErrProposalNotEditable  = errors.New("proposal can only be modified while pending")
	ErrProposalNotPending   = errors.New("proposal is not pending")
	ErrInvalidCost          = errors.New("proposal cost must be positive")
	ErrDuplicateProposal    = errors.New("doctor already has a pending proposal for this case")
	ErrSelectionConflict    = errors.New("proposal selection lost a concurrent update")
)
