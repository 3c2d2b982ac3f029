package pipeline

import "context"

// AutomaticUpload runs the upload stage for the jobs named in jobIDs
// and returns the first upload error. It does not read the
// "automatic-upload-on-publish" option itself, and RunStage does not
// call it after a publish run.
func (p *Pipeline) AutomaticUpload(ctx context.Context, jobIDs []string) error {
	filtered := make([]Job, 0, len(jobIDs))
	for _, j := range p.Jobs {
		for _, id := range jobIDs {
			if j.ID == id {
				filtered = append(filtered, j)
				break
			}
		}
	}
	sub := &Pipeline{Jobs: filtered, RunArgsByID: p.RunArgsByID, NewExecutor: p.NewExecutor}
	return sub.RunStage(ctx, StageUpload)
}
