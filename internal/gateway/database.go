package gateway

import (
	"context"
	"encoding/json"
	"net/url"
)

// databaseExtension is the file extension of a device database snapshot.
const databaseExtension = ".zdd"

// exportStarted is the reply of sendstartsavedatabasecurl.
type exportStarted struct {
	Success  flag   `json:"success"`
	FilePath string `json:"filepath"`
	FileName string `json:"filename"`
}

// exportStatus is the reply of checksavedatabase; status 1 means ready.
type exportStatus struct {
	Status json.RawMessage `json:"status"`
}

// SaveDatabase exports the device database of dev and stores it as
// <filename>.zdd in destDir (the current directory when empty).
//
// Phases:
//  1. start: ask the gateway to begin the export
//  2. poll: check export status until it reports ready, bounded by the
//     client's SaveDatabasePoll policy
//  3. fetch: download the snapshot and write it locally
//
// When the poll is exhausted the task ends TimedOut and nothing is fetched.
// The export file left on the server is not removed.
func (c *Client) SaveDatabase(ctx context.Context, sess *Session, dev DeviceAddress, destDir string) (TaskResult, error) {
	if err := dev.Validate(); err != nil {
		return TaskResult{}, err
	}
	t := c.newTracker(TaskSaveDatabase, dev.String(), c.saveDBPoll)

	t.enter(phaseStart)
	resp, err := c.postForm(ctx, sess, wsbacRoot+"sendstartsavedatabasecurl", url.Values{
		"deviceRef": {dev.legacyRef()},
	})
	if err != nil {
		return t.fail(err)
	}
	var started exportStarted
	if err := accepted(resp, &started); err != nil {
		return t.fail(err)
	}
	if !started.Success {
		return t.fail(rejected(resp))
	}
	t.done()

	t.enter(phasePoll)
	err = c.poll(ctx, c.saveDBPoll, t, func(ctx context.Context) error {
		resp, err := c.postForm(ctx, sess, wsbacRoot+"checksavedatabase", url.Values{
			"filepath": {started.FilePath},
			"filename": {started.FileName},
		})
		if err != nil {
			return err
		}
		var st exportStatus
		if err := accepted(resp, &st); err != nil {
			return err
		}
		if scalarText(st.Status) != "1" {
			return errPollContinue
		}
		return nil
	})
	if err != nil {
		return t.fail(err)
	}
	t.done()

	t.enter(phaseFetch)
	resp, err = c.postForm(ctx, sess, wsbacRoot+"savedatabasefile", url.Values{
		"saveDBToken": {started.FilePath + "/" + started.FileName},
		"deviceRef":   {dev.legacyRef()},
	})
	if err != nil {
		return t.fail(err)
	}
	if err := accepted(resp, nil); err != nil {
		return t.fail(err)
	}
	path, err := writeArtifact(destDir, started.FileName+databaseExtension, resp.body)
	if err != nil {
		return t.fail(err)
	}
	t.done()

	c.logger.Info("device database saved", "device", dev.String(), "file", path, "bytes", len(resp.body))
	result := t.succeed(resp.classify().Message)
	result.FilePath = path
	return result, nil
}

// LoadDatabase uploads localFile as the database of dev, then asks the
// gateway to wait for the device to come back online.
//
// The wait is a single call; its message is reported verbatim and no
// further polling happens.
func (c *Client) LoadDatabase(ctx context.Context, sess *Session, dev DeviceAddress, localFile string) (TaskResult, error) {
	if err := dev.Validate(); err != nil {
		return TaskResult{}, err
	}
	t := c.newTracker(TaskLoadDatabase, dev.String(), PollPolicy{MaxAttempts: 1})

	t.enter(phaseUpload)
	resp, err := c.postFile(ctx, sess, wsbacRoot+"loaddevicedatabasefile", url.Values{
		"password":  {""},
		"deviceRef": {jsonString(dev.legacyRef())},
	}, "loadDBFromFile", localFile)
	if err != nil {
		return t.fail(err)
	}
	var uploaded struct {
		Success flag `json:"success"`
	}
	if err := accepted(resp, &uploaded); err != nil {
		return t.fail(err)
	}
	if !uploaded.Success {
		return t.fail(rejected(resp))
	}
	t.done()

	t.enter(phaseWait)
	resp, err = c.postForm(ctx, sess, wsbacRoot+"waitfordeviceonline/", url.Values{
		"deviceRef": {jsonList(dev.legacyRef())},
	})
	if err != nil {
		return t.fail(err)
	}
	cl := resp.classify()
	if err := cl.Err(); err != nil {
		return t.fail(err)
	}
	t.done()

	c.logger.Info("device database loaded", "device", dev.String(), "file", localFile, "message", cl.Message)
	result := t.succeed(cl.Message)
	result.Response = resp.body
	return result, nil
}
