package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pairchat/internal/models"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	requestsCollection = "chatrequests"
)

// NewMongoStore wires the document-backed repositories and ensures their indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (Store, error) {
	if err := ensureMongoIndexes(ctx, db); err != nil {
		return Store{}, err
	}
	return Store{
		Users:    &MongoUserRepo{coll: db.Collection(usersCollection)},
		Messages: &MongoMessageRepo{coll: db.Collection(messagesCollection)},
		Requests: &MongoChatRequestRepo{coll: db.Collection(requestsCollection)},
		close:    func(ctx context.Context) error { return db.Client().Disconnect(ctx) },
	}, nil
}

func ensureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "incognitoChats.chatId", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "isDelivered", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := db.Collection(requestsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_pending_per_pair").
				SetPartialFilterExpression(bson.M{"status": models.RequestPending}),
		},
		{Keys: bson.D{{Key: "pairKey", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

// MongoUserRepo is a MongoDB-backed UserRepository.
type MongoUserRepo struct {
	coll *mongo.Collection
}

func (r *MongoUserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	now := time.Now().UTC()
	if user.Status == "" {
		user.Status = models.StatusOffline
	}
	user.Friends = nonNilStrings(user.Friends)
	user.BlockedUsers = nonNilStrings(user.BlockedUsers)
	user.IncognitoChats = nonNilRecords(user.IncognitoChats)
	user.CreatedAt, user.UpdatedAt = now, now
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoUserRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (r *MongoUserRepo) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoUserRepo) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"isOnline": online, "lastSeen": lastSeen}})
}

func (r *MongoUserRepo) SetStatus(ctx context.Context, id string, status models.Status) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"status": status}})
}

func (r *MongoUserRepo) AddFriendship(ctx context.Context, a, b string) error {
	if err := r.updateOne(ctx, a, bson.M{"$addToSet": bson.M{"friends": b}}); err != nil {
		return err
	}
	return r.updateOne(ctx, b, bson.M{"$addToSet": bson.M{"friends": a}})
}

func (r *MongoUserRepo) RemoveFriendship(ctx context.Context, a, b string) error {
	if err := r.updateOne(ctx, a, bson.M{"$pull": bson.M{"friends": b}}); err != nil {
		return err
	}
	return r.updateOne(ctx, b, bson.M{"$pull": bson.M{"friends": a}})
}

func (r *MongoUserRepo) Block(ctx context.Context, blockerID, blockedID string) error {
	if err := r.updateOne(ctx, blockerID, bson.M{
		"$addToSet": bson.M{"blockedUsers": blockedID},
		"$pull":     bson.M{"friends": blockedID},
	}); err != nil {
		return err
	}
	return r.updateOne(ctx, blockedID, bson.M{"$pull": bson.M{"friends": blockerID}})
}

func (r *MongoUserRepo) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return r.updateOne(ctx, blockerID, bson.M{"$pull": bson.M{"blockedUsers": blockedID}})
}

func (r *MongoUserRepo) PutIncognito(ctx context.Context, userID string, rec models.IncognitoRecord) error {
	if err := r.RemoveIncognito(ctx, userID, rec.ChatID); err != nil {
		return err
	}
	return r.updateOne(ctx, userID, bson.M{"$push": bson.M{"incognitoChats": rec}})
}

func (r *MongoUserRepo) RemoveIncognito(ctx context.Context, userID, chatID string) error {
	return r.updateOne(ctx, userID, bson.M{"$pull": bson.M{"incognitoChats": bson.M{"chatId": chatID}}})
}

func (r *MongoUserRepo) RemoveExpiredIncognito(ctx context.Context, userID, chatID string, now time.Time) error {
	return r.updateOne(ctx, userID, bson.M{"$pull": bson.M{"incognitoChats": bson.M{
		"chatId":    chatID,
		"expiresAt": bson.M{"$lte": now},
	}}})
}

func (r *MongoUserRepo) ListWithIncognito(ctx context.Context) ([]models.User, error) {
	cur, err := r.coll.Find(ctx, bson.M{"incognitoChats.0": bson.M{"$exists": true}})
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoUserRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	stamp(update)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MongoMessageRepo is a MongoDB-backed MessageRepository.
type MongoMessageRepo struct {
	coll *mongo.Collection
}

func (r *MongoMessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.Reactions = nonNilReactions(msg.Reactions)
	msg.UpdatedAt = msg.CreatedAt
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *MongoMessageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	var m models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return m, err
}

func (r *MongoMessageRepo) ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	msgs, err := r.find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MongoMessageRepo) ListIDsByChat(ctx context.Context, chatID string) ([]string, error) {
	cur, err := r.coll.Find(ctx, bson.M{"chatId": chatID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *MongoMessageRepo) ListUndelivered(ctx context.Context, receiverID string) ([]models.Message, error) {
	return r.find(ctx,
		bson.M{"receiverId": receiverID, "isDelivered": false, "isDeleted": false},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *MongoMessageRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "isDelivered": false},
		bson.M{"$set": bson.M{"isDelivered": true, "deliveredAt": at, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, id)
}

func (r *MongoMessageRepo) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "isRead": false}, readPipeline(at))
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, id)
}

func (r *MongoMessageRepo) MarkChatRead(ctx context.Context, chatID, senderID string, at time.Time) (int, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{"chatId": chatID, "senderId": senderID, "isRead": false}, readPipeline(at))
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// readPipeline keeps an existing deliveredAt and fills it otherwise.
func readPipeline(at time.Time) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"isRead":      true,
		"readAt":      at,
		"isDelivered": true,
		"deliveredAt": bson.M{"$ifNull": bson.A{"$deliveredAt", at}},
		"updatedAt":   time.Now().UTC(),
	}}}}
}

func (r *MongoMessageRepo) UpdateReactions(ctx context.Context, id string, reactions []models.Reaction) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"reactions": nonNilReactions(reactions)}})
}

func (r *MongoMessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": at, "content": models.Content{}}})
}

func (r *MongoMessageRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoMessageRepo) DeleteByChat(ctx context.Context, chatID string) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (r *MongoMessageRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MongoMessageRepo) updateOne(ctx context.Context, id string, update bson.M) error {
	stamp(update)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *MongoMessageRepo) changedOrMissing(ctx context.Context, res *mongo.UpdateResult, id string) (bool, error) {
	if res.ModifiedCount > 0 {
		return true, nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrMessageNotFound
	}
	return false, nil
}

// MongoChatRequestRepo is a MongoDB-backed ChatRequestRepository.
type MongoChatRequestRepo struct {
	coll *mongo.Collection
}

func (r *MongoChatRequestRepo) Create(ctx context.Context, req models.ChatRequest) (models.ChatRequest, error) {
	req.UpdatedAt = req.CreatedAt
	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ChatRequest{}, ErrPendingRequestExists
		}
		return models.ChatRequest{}, err
	}
	return req, nil
}

func (r *MongoChatRequestRepo) Get(ctx context.Context, id string) (models.ChatRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *MongoChatRequestRepo) FindPending(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	return r.findOne(ctx, bson.M{"pairKey": pairKey, "status": models.RequestPending}, nil)
}

func (r *MongoChatRequestRepo) Latest(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	return r.findOne(ctx, bson.M{"pairKey": pairKey}, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *MongoChatRequestRepo) ListPending(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	cur, err := r.coll.Find(ctx, bson.M{
		"status": models.RequestPending,
		"$or":    bson.A{bson.M{"senderId": userID}, bson.M{"receiverId": userID}},
	}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var reqs []models.ChatRequest
	if err := cur.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *MongoChatRequestRepo) Resolve(ctx context.Context, id string, status models.RequestStatus, at time.Time) (models.ChatRequest, error) {
	var req models.ChatRequest
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.RequestPending},
		bson.M{"$set": bson.M{"status": status, "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return req, err
}

func (r *MongoChatRequestRepo) DeletePending(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "status": models.RequestPending})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrChatRequestNotFound
	}
	return nil
}

func (r *MongoChatRequestRepo) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (models.ChatRequest, error) {
	var req models.ChatRequest
	var err error
	if opts != nil {
		err = r.coll.FindOne(ctx, filter, opts).Decode(&req)
	} else {
		err = r.coll.FindOne(ctx, filter).Decode(&req)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ChatRequest{}, ErrChatRequestNotFound
	}
	return req, err
}

// stamp adds updatedAt to the $set stage of an update document.
func stamp(update bson.M) {
	set, ok := update["$set"].(bson.M)
	if !ok {
		set = bson.M{}
		update["$set"] = set
	}
	set["updatedAt"] = time.Now().UTC()
}
