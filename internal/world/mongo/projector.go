// Package mongo provides a world-model projector backed by MongoDB.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"meshview/internal/world"
)

const (
	servicesCollection  = "services"
	endpointsCollection = "endpoints"
	edgesCollection     = "edges"
)

// Projector reads the topology collections and assembles snapshots. The last
// successful snapshot is cached for callers that cannot afford a fetch.
type Projector struct {
	client *mongo.Client
	db     *mongo.Database

	mu     sync.RWMutex
	cached *world.Snapshot
}

// NewProjector connects to MongoDB and verifies the connection.
func NewProjector(ctx context.Context, uri, dbName string) (*Projector, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if clientOpts.ConnectTimeout == nil {
		timeout := 10 * time.Second
		clientOpts.SetConnectTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	return &Projector{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

func (p *Projector) FetchModel(ctx context.Context) (*world.Snapshot, error) {
	snap := &world.Snapshot{}

	if err := p.loadAll(ctx, servicesCollection, &snap.Services); err != nil {
		return nil, fmt.Errorf("loading services: %w", err)
	}
	if err := p.loadAll(ctx, endpointsCollection, &snap.Endpoints); err != nil {
		return nil, fmt.Errorf("loading endpoints: %w", err)
	}
	if err := p.loadAll(ctx, edgesCollection, &snap.Edges); err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}

	p.mu.Lock()
	p.cached = snap
	p.mu.Unlock()
	return snap, nil
}

func (p *Projector) CachedModel() *world.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cached
}

// Close closes the MongoDB connection.
func (p *Projector) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

func (p *Projector) loadAll(ctx context.Context, collection string, out interface{}) error {
	cursor, err := p.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, out)
}
