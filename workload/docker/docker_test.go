package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/workload"

	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "noop"))

	err := mapErr(errdefs.NotFound(errors.New("no such container")), "inspect %s", "abc")
	assert.Equal(t, common.KindNotFound, common.KindOf(err))

	err = mapErr(errdefs.Conflict(errors.New("name in use")), "create")
	assert.Equal(t, common.KindConflict, common.KindOf(err))

	err = mapErr(context.DeadlineExceeded, "stop")
	assert.Equal(t, common.KindTimeout, common.KindOf(err))

	err = mapErr(fmt.Errorf("await stop: %w", context.DeadlineExceeded), "stop")
	assert.Equal(t, common.KindTimeout, common.KindOf(err))

	err = mapErr(errors.New("connection refused"), "list")
	assert.Equal(t, common.KindInfrastructure, common.KindOf(err))
}

func TestCreateRequiresImage(t *testing.T) {
	d := &Driver{}

	_, err := d.Create(context.Background(), &workload.Spec{Name: "nameless"})
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))
}
