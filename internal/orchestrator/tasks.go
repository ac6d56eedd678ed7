package orchestrator

import (
	"github.com/google/uuid"

	"github.com/lioth/strataforge/internal/plan"
	"github.com/lioth/strataforge/internal/prompt"
	"github.com/lioth/strataforge/pkg/models"
)

// Materialize expands every plan cell into its pending tasks, skipping slots
// already durable from a previous run. Each task gets a fresh cosmetic draw;
// the randomness never changes how many tasks a cell yields. Tasks come out
// in canonical cell order, though completion order is up to the scheduler.
func Materialize(p *plan.Plan, durable map[models.ResumeKey]bool, sampler *prompt.Sampler) []*models.GenerationTask {
	var tasks []*models.GenerationTask
	for _, cell := range p.Cells() {
		for i := 0; i < cell.Count; i++ {
			key := models.ResumeKey{Category: cell.Category, Format: cell.Format, Index: i}
			if durable[key] {
				continue
			}
			vars, complexity, perspective := sampler.Draw(cell.Category, cell.Format)
			tasks = append(tasks, &models.GenerationTask{
				ID:          uuid.New().String(),
				Key:         key,
				Complexity:  complexity,
				Perspective: perspective,
				Vars:        vars,
				State:       models.TaskPending,
			})
		}
	}
	return tasks
}
