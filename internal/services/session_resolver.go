package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// ResolveRequest 会话解析请求
type ResolveRequest struct {
	UserID       string
	Message      string
	YearLevel    int
	Curriculum   string
	ResetContext bool
}

// Resolution 会话解析结果
type Resolution struct {
	Record                models.ConversationRecord
	DetectedTopic         string
	Created               bool
	Migrated              bool
	PreviousKey           *models.ConversationKey
	ExistingConversations int
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// SessionResolver 将消息映射到会话记录
type SessionResolver struct {
	store         *ConversationStore
	classifier    *TopicClassifier
	recencyWindow time.Duration
	now           func() time.Time
	logger        *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// NewSessionResolver 创建会话解析器
func NewSessionResolver(store *ConversationStore, classifier *TopicClassifier, recencyWindow time.Duration, logger *zap.Logger) *SessionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionResolver{
		store:         store,
		classifier:    classifier,
		recencyWindow: recencyWindow,
		now:           time.Now,
		logger:        logger,
		locks:         make(map[string]*userLock),
	}
}

// LockUser 获取用户级互斥锁，返回解锁函数
func (r *SessionResolver) LockUser(userID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, userID)
			}
			r.locksMu.Unlock()
		})
	}
}

// Resolve 查找或创建会话，新建与迁移在 Commit 之前不写入存储。调用方必须持有 LockUser(req.UserID)
func (r *SessionResolver) Resolve(req ResolveRequest) Resolution {
	now := r.now()

	priorTopic := ""
	if recent, ok := r.store.MostRecent(req.UserID); ok {
		priorTopic = recent.Topic
	}
	topic := r.classifier.Classify(req.Message, priorTopic)
	exactKey := models.ConversationKey{UserID: req.UserID, Topic: topic, YearLevel: req.YearLevel}

	if req.ResetContext && r.store.Delete(exactKey) {
		r.logger.Info("Conversation context reset", zap.String("conversation_id", exactKey.String()))
	}

	res := Resolution{DetectedTopic: topic}

	if rec, ok := r.store.Get(exactKey); ok {
		res.Record = rec
	} else if recent, ok := r.store.MostRecent(req.UserID); ok && now.Sub(recent.LastActiveAt) < r.recencyWindow {
		oldKey := recent.Key
		recent.Key = exactKey
		recent.Topic = topic
		recent.LastActiveAt = now
		if oldKey != exactKey {
			res.Migrated = true
			res.PreviousKey = &oldKey
		}
		res.Record = recent
	} else {
		rec := models.ConversationRecord{
			Key:          exactKey,
			Topic:        topic,
			YearLevel:    req.YearLevel,
			Curriculum:   req.Curriculum,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		res.Record = rec
		res.Created = true
	}

	res.ExistingConversations = len(r.store.ListByUser(req.UserID))
	if res.Created {
		res.ExistingConversations++
	}
	return res
}

// Commit 写入解析结果对应的会话记录，迁移时先把旧键改为新键。调用方必须持有 LockUser
func (r *SessionResolver) Commit(res Resolution, rec models.ConversationRecord) {
	if res.Migrated && res.PreviousKey != nil {
		if r.store.Rekey(*res.PreviousKey, rec.Key) {
			r.logger.Info("Conversation migrated",
				zap.String("from", res.PreviousKey.String()),
				zap.String("to", rec.Key.String()),
			)
		}
	}
	r.store.Save(rec)
}

// Reset 删除指定会话，返回会话键和是否存在
func (r *SessionResolver) Reset(userID, subject string, yearLevel int) (models.ConversationKey, bool) {
	unlock := r.LockUser(userID)
	defer unlock()

	key := models.ConversationKey{UserID: userID, Topic: subject, YearLevel: yearLevel}
	existed := r.store.Delete(key)
	r.logger.Info("Conversation reset requested",
		zap.String("conversation_id", key.String()),
		zap.Bool("existed", existed),
	)
	return key, existed
}
