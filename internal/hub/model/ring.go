package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can discover and read a ring.
type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityUnlisted Visibility = "UNLISTED"
	VisibilityPrivate  Visibility = "PRIVATE"
)

// JoinPolicy controls how actors become members.
type JoinPolicy string

const (
	JoinPolicyOpen        JoinPolicy = "OPEN"
	JoinPolicyApplication JoinPolicy = "APPLICATION"
	JoinPolicyInvitation  JoinPolicy = "INVITATION"
	JoinPolicyClosed      JoinPolicy = "CLOSED"
)

// PostPolicy controls who may submit content references.
type PostPolicy string

const (
	PostPolicyOpen    PostPolicy = "OPEN"
	PostPolicyMembers PostPolicy = "MEMBERS"
	PostPolicyCurated PostPolicy = "CURATED"
	PostPolicyClosed  PostPolicy = "CLOSED"
)

// ValidVisibility reports whether v names a recognized visibility.
func ValidVisibility(v Visibility) bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// ValidJoinPolicy reports whether p names a recognized join policy.
func ValidJoinPolicy(p JoinPolicy) bool {
	switch p {
	case JoinPolicyOpen, JoinPolicyApplication, JoinPolicyInvitation, JoinPolicyClosed:
		return true
	}
	return false
}

// ValidPostPolicy reports whether p names a recognized post policy.
func ValidPostPolicy(p PostPolicy) bool {
	switch p {
	case PostPolicyOpen, PostPolicyMembers, PostPolicyCurated, PostPolicyClosed:
		return true
	}
	return false
}

// Permission names granted through ring roles.
const (
	PermManageRing     = "manage_ring"
	PermManageMembers  = "manage_members"
	PermManageRoles    = "manage_roles"
	PermModeratePosts  = "moderate_posts"
	PermUpdateRingInfo = "update_ring_info"
	PermDeleteRing     = "delete_ring"
	PermViewAuditLog   = "view_audit_log"
	PermSubmitPosts    = "submit_posts"
	PermViewContent    = "view_content"
)

// Reserved role names every ring carries.
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Ring is a named community: policies, genealogy, descriptors.
type Ring struct {
	ID                   uuid.UUID   `json:"id"                             db:"id"`
	Slug                 string      `json:"slug"                           db:"slug"`
	Name                 string      `json:"name"                           db:"name"`
	Description          string      `json:"description,omitempty"          db:"description"`
	ShortCode            string      `json:"shortCode,omitempty"            db:"short_code"`
	Visibility           Visibility  `json:"visibility"                     db:"visibility"`
	JoinPolicy           JoinPolicy  `json:"joinPolicy"                     db:"join_policy"`
	PostPolicy           PostPolicy  `json:"postPolicy"                     db:"post_policy"`
	OwnerDID             string      `json:"ownerDid"                       db:"owner_did"`
	ParentID             *uuid.UUID  `json:"parentId,omitempty"             db:"parent_id"`
	CuratorNote          string      `json:"curatorNote,omitempty"          db:"curator_note"`
	BannerURL            string      `json:"bannerUrl,omitempty"            db:"banner_url"`
	ThemeColor           string      `json:"themeColor,omitempty"           db:"theme_color"`
	BadgeImageURL        string      `json:"badgeImageUrl,omitempty"        db:"badge_image_url"`
	BadgeImageHighResURL string      `json:"badgeImageHighResUrl,omitempty" db:"badge_image_high_res_url"`
	Metadata             Meta        `json:"metadata,omitempty"             db:"metadata"`
	Policies             Meta        `json:"policies,omitempty"             db:"policies"`
	CreatedAt            time.Time   `json:"createdAt"                      db:"created_at"`
	UpdatedAt            time.Time   `json:"updatedAt"                      db:"updated_at"`
	// MemberCount and PostCount are computed at read time for list/detail
	// payloads; they are never stored on the rings table.
	MemberCount int `json:"memberCount,omitempty" db:"-"`
	PostCount   int `json:"postCount,omitempty"   db:"-"`
}

// Meta holds extensible JSON metadata.
type Meta map[string]any

// RingRole is a named permission set scoped to one ring.
type RingRole struct {
	ID          uuid.UUID `json:"id"          db:"id"`
	RingID      uuid.UUID `json:"ringId"      db:"ring_id"`
	Name        string    `json:"name"        db:"name"`
	Permissions []string  `json:"permissions" db:"permissions"`
}

// HasPermission reports whether the role grants the named permission.
func (r *RingRole) HasPermission(p string) bool {
	for _, perm := range r.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// OwnerPermissions is the permission set of the owner role.
func OwnerPermissions() []string {
	return []string{
		PermManageRing, PermManageMembers, PermManageRoles,
		PermModeratePosts, PermUpdateRingInfo, PermDeleteRing,
		PermViewAuditLog, PermSubmitPosts, PermViewContent,
	}
}

// ModeratorPermissions is the permission set of the moderator role.
func ModeratorPermissions() []string {
	return []string{PermModeratePosts, PermViewAuditLog, PermSubmitPosts, PermViewContent}
}

// MemberPermissions is the permission set of the member role.
func MemberPermissions() []string {
	return []string{PermSubmitPosts, PermViewContent}
}

const (
	SlugMinLength = 3
	SlugMaxLength = 25
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether s satisfies the slug rules: 3–25 characters of
// lowercase a-z, 0-9 and hyphen, with no leading, trailing, or consecutive
// hyphens.
func IsValidSlug(s string) bool {
	if len(s) < SlugMinLength || len(s) > SlugMaxLength {
		return false
	}
	return slugPattern.MatchString(s)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9 -]`)

// SlugBase derives a slug candidate from a display name. The result is valid
// except for uniqueness, which the caller resolves with numeric suffixes.
func SlugBase(name string) string {
	s := strings.ToLower(name)
	s = slugStrip.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > SlugMaxLength {
		s = strings.Trim(s[:SlugMaxLength], "-")
	}
	if s == "" {
		s = "ring"
	}
	if len(s) < SlugMinLength {
		s += "-ring"
	}
	return s
}

// SlugWithSuffix appends a numeric disambiguation suffix, trimming the base
// so the result stays within the length limit.
func SlugWithSuffix(base string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > SlugMaxLength {
		base = strings.Trim(base[:SlugMaxLength-len(suffix)], "-")
	}
	return base + suffix
}

// CreateRingRequest is the payload for creating a ring.
type CreateRingRequest struct {
	Name                 string     `json:"name" binding:"required"`
	Slug                 string     `json:"slug"`
	Description          string     `json:"description"`
	ShortCode            string     `json:"shortCode"`
	Visibility           Visibility `json:"visibility"`
	JoinPolicy           JoinPolicy `json:"joinPolicy"`
	PostPolicy           PostPolicy `json:"postPolicy"`
	CuratorNote          string     `json:"curatorNote"`
	BannerURL            string     `json:"bannerUrl"`
	ThemeColor           string     `json:"themeColor"`
	BadgeImageURL        string     `json:"badgeImageUrl"`
	BadgeImageHighResURL string     `json:"badgeImageHighResUrl"`
	Metadata             Meta       `json:"metadata"`
	Policies             Meta       `json:"policies"`
}

// ForkRingRequest is the payload for forking an existing ring.
type ForkRingRequest struct {
	CreateRingRequest
	ParentSlug string `json:"parentSlug" binding:"required"`
}

// UpdateRingRequest is the payload for updating ring descriptors. Pointer
// fields distinguish "leave unchanged" from "set to zero value".
type UpdateRingRequest struct {
	Name                 *string     `json:"name"`
	Description          *string     `json:"description"`
	ShortCode            *string     `json:"shortCode"`
	Visibility           *Visibility `json:"visibility"`
	JoinPolicy           *JoinPolicy `json:"joinPolicy"`
	PostPolicy           *PostPolicy `json:"postPolicy"`
	CuratorNote          *string     `json:"curatorNote"`
	BannerURL            *string     `json:"bannerUrl"`
	ThemeColor           *string     `json:"themeColor"`
	BadgeImageURL        *string     `json:"badgeImageUrl"`
	BadgeImageHighResURL *string     `json:"badgeImageHighResUrl"`
	Metadata             Meta        `json:"metadata"`
	Policies             Meta        `json:"policies"`
	ParentSlug           *string     `json:"parentSlug"`
}

// RingFilter narrows ring listings. MemberDID restricts results to rings the
// DID is an active member of; ViewerDID is the caller, whose private rings
// stay visible while everyone else's are excluded.
type RingFilter struct {
	Search     string
	Visibility Visibility
	MemberDID  string
	ViewerDID  string
	Limit      int
	Offset     int
}

// SlugAvailability is the slug check result.
type SlugAvailability struct {
	Slug      string `json:"slug"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// LineageNode is one ring in a lineage tree with its pre-filter descendant
// count.
type LineageNode struct {
	Ring            *Ring          `json:"ring"`
	DescendantCount int            `json:"descendantCount"`
	Children        []*LineageNode `json:"children,omitempty"`
}

// Lineage is the genealogy view of a ring. DescendantCount covers the whole
// subtree under Ring, including nodes hidden from the caller.
type Lineage struct {
	Ring            *Ring          `json:"ring"`
	Ancestors       []*Ring        `json:"ancestors"`
	Descendants     []*LineageNode `json:"descendants"`
	DescendantCount int            `json:"descendantCount"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// TimeWindow selects a trending interval.
type TimeWindow string

const (
	WindowHour  TimeWindow = "hour"
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
)

// Duration returns the interval length, defaulting to a day for unknown
// windows.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Stats is the global counters payload.
type Stats struct {
	Rings struct {
		Total    int `json:"total"`
		Public   int `json:"public"`
		Unlisted int `json:"unlisted"`
		Private  int `json:"private"`
	} `json:"rings"`
	Actors struct {
		Total    int `json:"total"`
		Verified int `json:"verified"`
	} `json:"actors"`
	Memberships struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"memberships"`
	Posts struct {
		Total    int `json:"total"`
		Accepted int `json:"accepted"`
	} `json:"posts"`
	GeneratedAt time.Time `json:"generatedAt"`
}
