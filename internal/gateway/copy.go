package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// progressComplete is the progress value of a finished paste task.
const progressComplete = 100

// pasteItem is one entry of the pasteobject "data" list.
type pasteItem struct {
	Ref      string      `json:"ref"`
	Name     string      `json:"name"`
	Instance json.Number `json:"instance"`
}

// taskProgress is one entry of the shared copy/paste progress list.
type taskProgress struct {
	TaskID   json.RawMessage `json:"taskID"`
	Progress json.RawMessage `json:"progress"`
}

// CopyObject copies the object at ref to toInstance on the same device and
// names the copy newName.
//
// Phases:
//  1. prepare: request paste suggestions (required by the gateway, result
//     discarded)
//  2. create_task: obtain a server-side task id
//  3. submit: paste the source object into the new instance
//  4. progress: poll the shared progress list until the task reports 100,
//     bounded by the client's CopyObjectPoll policy
//  5. finalize: fetch the merged target parameters of the task
//
// A task still running when the poll is exhausted is left on the server;
// the gateway has no cancel call. The WorkflowError carries its id.
func (c *Client) CopyObject(ctx context.Context, sess *Session, ref ObjectReference, toInstance, newName string) (TaskResult, error) {
	if err := ref.Validate(); err != nil {
		return TaskResult{}, err
	}
	if err := checkInstance("target instance", toInstance); err != nil {
		return TaskResult{}, err
	}
	dev := ref.DeviceAddress()
	t := c.newTracker(TaskCopyObject, ref.String(), c.copyObjectPoll)

	t.enter(phasePrepare)
	resp, err := c.postForm(ctx, sess, wsbacRoot+"getsuggestedpastedata", url.Values{
		"refs":    {jsonList(ref.legacyRef())},
		"devices": {jsonList(dev.legacyRef())},
		"names":   {jsonList("")},
	})
	if err != nil {
		return t.fail(err)
	}
	if err := accepted(resp, nil); err != nil {
		return t.fail(err)
	}
	t.done()

	t.enter(phaseCreate)
	resp, err = c.postForm(ctx, sess, wsbacRoot+"createpasteobjecttask", nil)
	if err != nil {
		return t.fail(err)
	}
	var created struct {
		TaskID json.RawMessage `json:"taskid"`
	}
	if err := accepted(resp, &created); err != nil {
		return t.fail(err)
	}
	taskID := scalarText(created.TaskID)
	if taskID == "" {
		return t.fail(fmt.Errorf("%w: no taskid in %s", ErrUnexpectedResponse, snippet(resp.body)))
	}
	t.setTaskID(taskID)
	t.done()

	t.enter(phaseSubmit)
	instance, err := jsonNumber(toInstance)
	if err != nil {
		return t.fail(err)
	}
	data, err := json.Marshal([]pasteItem{{
		Ref:      ref.legacyRef(),
		Name:     newName,
		Instance: instance,
	}})
	if err != nil {
		return t.fail(fmt.Errorf("encoding paste data: %w", err))
	}
	resp, err = c.postForm(ctx, sess, wsbacRoot+"pasteobject", url.Values{
		"type":                   {"local"},
		"data":                   {string(data)},
		"target":                 {jsonList(dev.legacyRef())},
		"startInstance":          {""},
		"ignoreSpecialAlgorithm": {"true"},
		"taskID":                 {taskID},
	})
	if err != nil {
		return t.fail(err)
	}
	if err := accepted(resp, nil); err != nil {
		return t.fail(err)
	}
	t.done()

	t.enter(phaseProgress)
	progressURL := c.serverURL(sess.server(), taskRoot+"getcopypastetaskprogress")
	err = c.poll(ctx, c.copyObjectPoll, t, func(ctx context.Context) error {
		resp, err := c.get(ctx, sess, progressURL)
		if err != nil {
			return err
		}
		var list []taskProgress
		if err := accepted(resp, &list); err != nil {
			return err
		}
		for _, p := range list {
			if scalarText(p.TaskID) == taskID && progressDone(p.Progress) {
				return nil
			}
		}
		return errPollContinue
	})
	if err != nil {
		c.logger.Warn("paste task abandoned", "task_id", taskID, "object", ref.String(), "error", err)
		return t.fail(err)
	}
	t.done()

	t.enter(phaseFinalize)
	resp, err = c.postForm(ctx, sess, taskRoot+"getmergedtasktargetparamdata", url.Values{
		"taskID": {taskID},
	})
	if err != nil {
		return t.fail(err)
	}
	cl := resp.classify()
	if err := cl.Err(); err != nil {
		return t.fail(err)
	}
	t.done()

	target := ObjectReference{Site: ref.Site, Device: ref.Device, ObjectType: ref.ObjectType, Instance: toInstance}
	c.logger.Info("object copied", "from", ref.String(), "to", target.String(), "name", newName, "task_id", taskID)

	result := t.succeed(cl.Message)
	result.Target = target
	result.Response = resp.body
	return result, nil
}

func progressDone(raw json.RawMessage) bool {
	v, err := strconv.ParseFloat(scalarText(raw), 64)
	return err == nil && v >= progressComplete
}
