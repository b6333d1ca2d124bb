package domain

// Mutation describes what a batch run should change. A nil field is left alone.
type Mutation struct {
	GroupName *string
	Nickname  *string
}

// IsEmpty reports whether the mutation would change nothing.
func (m Mutation) IsEmpty() bool {
	return m.GroupName == nil && m.Nickname == nil
}

// MutationBatchResult is the outcome of one batch run against one group.
// NicknameSuccessCount + NicknameFailureCount equals MembersTargeted unless
// the run was cancelled, in which case members that were never attempted
// are not counted.
type MutationBatchResult struct {
	GroupNameChanged     bool
	NicknameSuccessCount int
	NicknameFailureCount int
	MembersTargeted      int
	Cancelled            bool
}
