package normalize

// Raw-to-canonical field mapping, centralized so upstream field-shape drift
// is patched in one place. Each logical field lists its known upstream keys
// in preference order; accessors on models.RawObject take the first present.
var (
	postIdKeys     = []string{"postItemId", "id", "_id"}
	postAuthorKeys = []string{"userId", "authorId", "ownerId"}
	textKeys       = []string{"text", "message"}
	createdAtKeys  = []string{"createdAt", "cAt", "created"}
	updatedAtKeys  = []string{"editedAt", "updatedAt"}
	albumKeys      = []string{"album"}
	hashTagKeys    = []string{"hashTags", "hashtags"}
	groupKeys      = []string{"groupId", "group"}

	mediaListKeys  = []string{"medias", "media"}
	mediaCountKeys = []string{"mediasCount", "mediaCount"}
	fileListKeys   = []string{"files", "documents"}

	commentIdKeys     = []string{"id", "commentId", "_id"}
	commentAuthorKeys = []string{"userId", "authorId"}
	commentParentKeys = []string{"replyTo", "parentId"}
	replyCountKeys    = []string{"repliesCount", "replyCount"}

	userNameKeys   = []string{"name", "displayName"}
	userInviteKeys = []string{"contactInviteId", "inviteId"}

	photoIdKeys   = []string{"id", "photoId"}
	photoNameKeys = []string{"name", "fileName"}
	mimeKeys      = []string{"mime", "mimeType"}

	fileNameKeys = []string{"fileName", "name"}
	fileSizeKeys = []string{"length", "size"}

	linkTitleKeys = []string{"title"}
	linkDescKeys  = []string{"description", "text"}
)
