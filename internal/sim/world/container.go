package world

import (
	"fmt"

	"skyisland.ai/internal/sim/island/model"
)

// Container is a fixed-size slot array. The world hands out the pointer
// itself, so writes are live.
type Container struct {
	slots []model.ItemStack
}

func NewContainer(size int) *Container {
	return &Container{slots: make([]model.ItemStack, size)}
}

func (c *Container) Size() int { return len(c.slots) }

func (c *Container) Clear() {
	for i := range c.slots {
		c.slots[i] = model.ItemStack{}
	}
}

func (c *Container) SetItem(slot int, item model.ItemStack) error {
	if slot < 0 || slot >= len(c.slots) {
		return fmt.Errorf("slot %d of %d: %w", slot, len(c.slots), model.ErrSlotOutOfRange)
	}
	if item.Empty() {
		item = model.ItemStack{}
	}
	c.slots[slot] = item
	return nil
}

// SetContents replaces every slot. Shorter input clears the remainder.
func (c *Container) SetContents(slots []model.ItemStack) error {
	if len(slots) > len(c.slots) {
		return fmt.Errorf("%d items for %d slots: %w", len(slots), len(c.slots), model.ErrSlotOutOfRange)
	}
	c.Clear()
	for i, s := range slots {
		if !s.Empty() {
			c.slots[i] = s
		}
	}
	return nil
}

func (c *Container) Contents() []model.ItemStack {
	out := make([]model.ItemStack, len(c.slots))
	copy(out, c.slots)
	return out
}
