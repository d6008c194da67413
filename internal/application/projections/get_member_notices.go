package projections

import (
	"context"

	domainMember "frontdesk/internal/domain/member"
	domainNotice "frontdesk/internal/domain/notice"
)

// GetMemberNoticesQuery carries query parameters.
type GetMemberNoticesQuery struct {
	MemberID string
	Limit    int
}

// GetMemberNoticesDeps holds dependencies for GetMemberNotices.
type GetMemberNoticesDeps struct {
	NoticeStore NoticeStore
}

// QueryGetMemberNotices lists the newest notices addressed to a member.
// PRE: MemberID is non-empty
// POST: Returns at most Limit notices, newest first, never nil
func QueryGetMemberNotices(ctx context.Context, query GetMemberNoticesQuery, deps GetMemberNoticesDeps) ([]domainNotice.Notice, error) {
	memberID := domainMember.NormalizeID(query.MemberID)
	if memberID == "" {
		return nil, domainMember.ErrEmptyID
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notices, err := deps.NoticeStore.ListForRecipient(ctx, memberID, limit)
	if err != nil {
		return nil, storeFailure("list notices", err)
	}
	if notices == nil {
		notices = []domainNotice.Notice{}
	}
	return notices, nil
}
