package model

// Category groups notification types for filtering and settings UI.
type Category string

const (
	CategoryEngagement Category = "engagement"
	CategorySocial     Category = "social"
	CategoryContent    Category = "content"
	CategorySystem     Category = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Channel is a delivery medium. Only in_app and email have real dispatchers;
// the rest are tracked status-only until their providers are wired in.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
)

type BatchingMode string

const (
	BatchingImmediate BatchingMode = "immediate"
	BatchingBatched   BatchingMode = "batched"
	BatchingDigest    BatchingMode = "digest"
)

// NotificationType is static metadata for one kind of event. The registry is
// built once at startup and never mutated; components receive it by injection.
type NotificationType struct {
	ID              string
	DisplayName     string
	Category        Category
	Priority        Priority
	Batchable       bool
	DefaultChannels []Channel
}

// BatchTypeSuffix marks synthesized batch summary notifications, e.g.
// CONTENT_LIKED_BATCH.
const BatchTypeSuffix = "_BATCH"

func BatchTypeID(typeID string) string {
	return typeID + BatchTypeSuffix
}

type TypeRegistry struct {
	types map[string]NotificationType
	order []string
}

func NewTypeRegistry(types ...NotificationType) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]NotificationType, len(types))}
	for _, t := range types {
		if _, exists := r.types[t.ID]; exists {
			continue
		}
		r.types[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return r
}

func (r *TypeRegistry) Get(id string) (NotificationType, bool) {
	t, ok := r.types[id]
	return t, ok
}

// All returns types in registration order.
func (r *TypeRegistry) All() []NotificationType {
	out := make([]NotificationType, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// DefaultTypeRegistry is the built-in type table.
func DefaultTypeRegistry() *TypeRegistry {
	return NewTypeRegistry(
		NotificationType{
			ID:              "CONTENT_LIKED",
			DisplayName:     "Content liked",
			Category:        CategoryEngagement,
			Priority:        PriorityLow,
			Batchable:       true,
			DefaultChannels: []Channel{ChannelInApp, ChannelEmail},
		},
		NotificationType{
			ID:              "CONTENT_COMMENTED",
			DisplayName:     "New comment",
			Category:        CategoryEngagement,
			Priority:        PriorityMedium,
			Batchable:       true,
			DefaultChannels: []Channel{ChannelInApp, ChannelEmail},
		},
		NotificationType{
			ID:              "CONTENT_SHARED",
			DisplayName:     "Content shared",
			Category:        CategoryEngagement,
			Priority:        PriorityLow,
			Batchable:       true,
			DefaultChannels: []Channel{ChannelInApp},
		},
		NotificationType{
			ID:              "NEW_FOLLOWER",
			DisplayName:     "New follower",
			Category:        CategorySocial,
			Priority:        PriorityLow,
			Batchable:       true,
			DefaultChannels: []Channel{ChannelInApp, ChannelEmail},
		},
		NotificationType{
			ID:              "MENTION",
			DisplayName:     "Mention",
			Category:        CategorySocial,
			Priority:        PriorityHigh,
			Batchable:       false,
			DefaultChannels: []Channel{ChannelInApp, ChannelEmail, ChannelPush},
		},
		NotificationType{
			ID:              "CONTENT_PUBLISHED",
			DisplayName:     "New content from people you follow",
			Category:        CategoryContent,
			Priority:        PriorityLow,
			Batchable:       true,
			DefaultChannels: []Channel{ChannelInApp},
		},
		NotificationType{
			ID:              "SYSTEM_ANNOUNCEMENT",
			DisplayName:     "Announcement",
			Category:        CategorySystem,
			Priority:        PriorityHigh,
			Batchable:       false,
			DefaultChannels: []Channel{ChannelInApp, ChannelEmail},
		},
	)
}
