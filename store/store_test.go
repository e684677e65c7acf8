package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/plan"
)

func samplePlan(t *testing.T, name string) *plan.WorkflowPlan {
	t.Helper()
	p := plan.NewWorkflowPlan(name, "测试目标")
	node := plan.NewNodeDefinition("collect", plan.NodeTypePython)
	node.Code = "print('x')"
	require.NoError(t, p.AddNode(node))
	return p
}

// repositoryContract 三种后端共用的契约测试
func repositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	p := samplePlan(t, "contract")
	require.NoError(t, repo.Save(ctx, p))

	loaded, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)
	assert.Equal(t, p.Goal, loaded.Goal)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "collect", loaded.Nodes[0].Name)

	// GetByID 缺失 → ErrNotFound；FindByID 缺失 → nil, nil
	_, err = repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	missing, err := repo.FindByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	exists, err := repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	second := samplePlan(t, "contract_second")
	require.NoError(t, repo.Save(ctx, second))
	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Save 覆盖同ID
	p.Name = "contract_renamed"
	require.NoError(t, repo.Save(ctx, p))
	renamed, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "contract_renamed", renamed.Name)

	// Delete 幂等
	require.NoError(t, repo.Delete(ctx, p.ID))
	require.NoError(t, repo.Delete(ctx, p.ID))
	exists, err = repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()
	repositoryContract(t, repo)
}

func TestMemoryRepositoryIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p := samplePlan(t, "isolated")
	require.NoError(t, repo.Save(ctx, p))

	loaded, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	loaded.Name = "mutated"

	again, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "isolated", again.Name)
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(":memory:", zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()
	repositoryContract(t, repo)
}

func TestRedisRepository(t *testing.T) {
	mr := miniredis.RunT(t)

	repo, err := NewRedisRepository(mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()
	repositoryContract(t, repo)
}

func TestFactoryByBackendName(t *testing.T) {
	repo, err := New(Config{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	repo, err = New(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	repo, err = New(Config{Backend: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repo)
	repo.Close()

	_, err = New(Config{Backend: "etcd"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSaveRequiresID(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Save(context.Background(), &plan.WorkflowPlan{})
	assert.Error(t, err)
	assert.Error(t, repo.Save(context.Background(), nil))
}
