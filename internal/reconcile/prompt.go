package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/extraction"
)

const profileExample = `1. **Add**: If newly extracted memories contain new information that does not exist or conflict with the memory bank, they must be added with new IDs generated.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "Occupation: Software Engineer"},
                {"id": "1", "text": "Hobbies: Likes handsome guys with substance"}
            ]
        - Retrieved facts: ["Name: Xiaoming", "Hobbies: Likes Wang Junkai"]
        - New Memory:
            {"memory": [
                {"id": "2", "text": "Name: Xiaoming", "event": "ADD"},
                {"id": "3", "text": "Hobbies: Likes Wang Junkai", "event": "ADD"}
            ]}

2. **Update**: If newly extracted memories contain information that already exists in the memory bank but is entirely different, they must be updated.
If newly extracted memories are partially related to existing memories, the most informative fact must be retained.
Example (a) — If the existing memory is "User likes playing cricket," and the newly extracted memory is "Likes playing cricket with friends," update the memory with the newly extracted one.
Example (b) — If the existing memory is "Likes cheese pizza," and the newly extracted memory is "Loves cheese pizza," no update is needed as they convey the same information.
Note: When updating, the same ID must be retained.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "Name: Xiaoming"},
                {"id": "1", "text": "Occupation: Software Engineer"},
                {"id": "2", "text": "Likes: Playing cricket"}
            ]
        - Retrieved facts: ["Name: Wan'er", "Likes: Playing cricket with friends"]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "Name: Wan'er", "event": "UPDATE", "old_memory": "Name: Xiaoming"},
                {"id": "2", "text": "Likes: Playing cricket with friends", "event": "UPDATE", "old_memory": "Likes: Playing cricket"}
            ]}

3. **Delete**: If newly extracted memories contain information that contradicts existing information in the memory bank or duplicate existing memories, they must be deleted.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "Name: Xiaoming"},
                {"id": "1", "text": "User's name is Xiaoming"},
                {"id": "2", "text": "Likes: Cheese pizza"}
            ]
        - Retrieved facts: ["Dislikes: Cheese pizza"]
        - New Memory:
            {"memory": [
                {"id": "1", "text": "User's name is Xiaoming", "event": "DELETE"},
                {"id": "2", "text": "Likes: Cheese pizza", "event": "DELETE"},
                {"id": "3", "text": "Dislikes: Cheese pizza", "event": "ADD"}
            ]}

4. **None**: If newly extracted facts contain information that already exists in the memory bank, no changes are needed.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "Name: Xiaoming"},
                {"id": "1", "text": "Likes: Cheese pizza"}
            ]
        - Retrieved facts: ["Name: Xiaoming"]
        - New Memory:
            {"memory": []}`

const factsExample = `1. **Add**: If newly extracted memories contain new information that does not exist in the memory bank, they must be added with new IDs generated, and the memory content should not be modified.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "On 2025-06-03, the Player had an argument with a friend who stood them up and went out with others, feeling upset"}
            ]
        - Retrieved facts: ["The Player plans to host a party on May 5th for their birthday and invites the NPC to attend"]
        - New Memory:
            {"memory": [
                {"id": "1", "text": "The Player plans to host a party on May 5th for their birthday and invites the NPC to attend", "event": "ADD"}
            ]}

2. **Update**: If newly extracted memories contain information that already exists in the memory bank but is entirely different, they must be updated.
If newly extracted memories are partially related to existing memories, the most informative fact must be retained.
Note: When updating, the same ID must be retained.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.

3. **Delete**: If newly extracted memories contain information that contradicts existing information in the memory bank or if the memory bank already contains duplicate memories, they must be deleted.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "On 2025-06-03, the Player had an argument with a friend who stood them up and went out with others, feeling upset"},
                {"id": "1", "text": "On 2025-06-03, the Player requested the NPC to become their friend"}
            ]
        - Retrieved facts: ["On 2025-06-03, the Player requested the NPC to become their friend"]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "On 2025-06-03, the Player had an argument with a friend who stood them up and went out with others, feeling upset", "event": "DELETE"},
                {"id": "1", "text": "On 2025-06-03, the Player requested the NPC to become their friend", "event": "ADD"}
            ]}

4. **None**: If newly extracted facts contain information that already exists in the memory bank, no changes are needed.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "On 2025-06-03, the Player had an argument with a friend who stood them up and went out with others, feeling upset"}
            ]
        - Retrieved facts: ["On 2025-06-03, the Player had an argument with a friend, feeling upset"]
        - New Memory:
            {"memory": []}`

const commitmentsExample = `1. **Add**: If newly extracted memories contain new information that does not exist in the memory bank, they must be added with new IDs generated, and the memory content should not be modified.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "title: Dinner with acquaintance, why: Build connection through casual social interaction, step: Confirm meeting details day-of, timebox_min: 5, due: null, status: planned"}
            ]
        - Retrieved facts: ["title: Declutter shelf, why: lighter home, step: sort one shelf, timebox_min: 5, due: 2025-09-13, status: planned"]
        - New Memory:
            {"memory": [
                {"id": "1", "text": "title: Declutter shelf, why: lighter home, step: sort one shelf, timebox_min: 5, due: 2025-09-13, status: planned", "event": "ADD"}
            ]}

2. **Update**: If newly extracted memories contain information that already exists in the memory bank but is entirely different, they must be updated.
If newly extracted memories are partially related to existing memories, the most informative fact must be retained.
Note: When updating, the same ID must be retained.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "title: Trip to Sayram Lake with NPC, why: Enjoy travel companionship and explore natural scenery together, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: null, status: planned"}
            ]
        - Retrieved facts: ["Changed my mind—not going to Sayram Lake due to weather conditions, switching to Beijing for the trip instead. Departing in two weeks."]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "title: Trip to Beijing with NPC, why: due to weather conditions, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: two weeks from now, status: planned", "event": "UPDATE", "old_memory": "title: Trip to Sayram Lake with NPC, why: Enjoy travel companionship and explore natural scenery together, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: null, status: planned"}
            ]}

3. **Delete**: If newly extracted memories contain information that contradicts existing information in the memory bank or if the memory bank already contains duplicate memories, they must be deleted.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "title: Trip to Beijing with NPC, why: due to weather conditions, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: two weeks from now, status: planned"}
            ]
        - Retrieved facts: ["changed mind and gave up on the trip to Beijing with NPC"]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "title: Trip to Beijing with NPC, why: due to weather conditions, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: two weeks from now, status: planned", "event": "DELETE"}
            ]}

4. **None**: If newly extracted facts contain information that already exists in the memory bank, no changes are needed.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "title: Trip to Beijing with NPC, why: due to weather conditions, step: Research itinerary and book flights/accommodation, timebox_min: 5, due: two weeks from now, status: planned"},
                {"id": "1", "text": "title: Declutter shelf, why: lighter home, step: sort one shelf, timebox_min: 5, due: 2025-09-13, status: planned"}
            ]
        - Retrieved facts: ["travel to Beijing with NPC next week"]
        - New Memory:
            {"memory": []}`

const styleExample = `Mirror words/avoid_words must not exceed 15 words.
1. **Add**: If newly extracted memories contain new information that does not exist or conflict with the memory bank, they must be added with new IDs generated.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "tone: gentle"}
            ]
        - Retrieved facts: ["mirror_words: tea", "avoid_words: should"]
        - New Memory:
            {"memory": [
                {"id": "1", "text": "mirror_words: tea", "event": "ADD"},
                {"id": "2", "text": "avoid_words: should", "event": "ADD"}
            ]}

2. **Update**: If newly extracted memories contain information that already exists in the memory bank but is entirely different, they must be updated. Merge word lists rather than replacing them.
Note: When updating, the same ID must be retained.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "mirror_words: tea"},
                {"id": "1", "text": "avoid_words: should"}
            ]
        - Retrieved facts: ["mirror_words: lantern", "avoid_words: hustle"]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "mirror_words: tea, lantern", "event": "UPDATE", "old_memory": "mirror_words: tea"},
                {"id": "1", "text": "avoid_words: should, hustle", "event": "UPDATE", "old_memory": "avoid_words: should"}
            ]}

3. **Delete**: If newly extracted memories contain information that contradicts existing information in the memory bank or duplicate existing memories, they must be deleted.
Note: In the output, only return IDs from the input IDs; do not generate any new IDs.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "emoji_ok: true"},
                {"id": "1", "text": "avoid_words: hustle, should"}
            ]
        - Retrieved facts: ["emoji_ok: false"]
        - New Memory:
            {"memory": [
                {"id": "0", "text": "emoji_ok: true", "event": "DELETE"},
                {"id": "2", "text": "emoji_ok: false", "event": "ADD"}
            ]}

4. **None**: If newly extracted facts contain information that already exists in the memory bank, no changes are needed.
    - **Example**:
        - Old Memory:
            [
                {"id": "0", "text": "emoji_ok: true"},
                {"id": "1", "text": "avoid_words: hustle, should"}
            ]
        - Retrieved facts: ["avoid_words: hustle"]
        - New Memory:
            {"memory": []}`

// exampleFor returns the worked-example block for a subtype's decision
// prompt. Subtypes without a dedicated block fall back to the facts one.
func exampleFor(subtype extraction.Subtype) string {
	switch subtype {
	case extraction.SubtypeProfile:
		return profileExample
	case extraction.SubtypeCommitments:
		return commitmentsExample
	case extraction.SubtypeStyle:
		return styleExample
	default:
		return factsExample
	}
}

// oldMemory is an existing record rendered into the decision prompt with a
// short positional id.
type oldMemory struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// buildDecisionPrompt renders the memory-manager instruction for one
// reconciliation pass.
func buildDecisionPrompt(subtype extraction.Subtype, old []oldMemory, candidates []string) string {
	oldJSON, _ := json.MarshalIndent(old, "", "  ")
	if old == nil {
		oldJSON = []byte("[]")
	}
	candJSON, _ := json.Marshal(candidates)

	return fmt.Sprintf(`You are an intelligent memory manager in a memory system, and you can perform the following three operations: (1) Add new memories, (2) Update memories, (3) Delete memories.
Based on the above three operations, compare each newly extracted memory with the existing memories in detail, and decide:
- ADD: If the memory bank does not already contain a memory that is semantically similar to the newly extracted memory, add the new memory to the memory bank.
- UPDATE: If the memory bank already contains a memory that is semantically similar to the newly extracted memory, update the existing memory with the new information.
- DELETE: If the memory bank already contains a memory that contradicts the newly extracted memory, delete the existing memory.
- NONE: If the newly extracted memory does not contain any new information that is not already in the memory bank, no changes are needed.

Specific guidelines for selecting which operation to perform:

%s

Please adhere to the following instructions:
- If the current memory bank is empty, you must add the newly extracted memories.
- You MUST return the updated memories strictly in valid JSON format as shown below. If no changes are made, the IDs must remain unchanged.
- For ADD operations, generate new IDs and add the corresponding memories, ensuring the content exactly matches the extracted memories.
- For DELETE operations, remove the corresponding key-value pair from the memory bank.
- For UPDATE operations, keep the ID unchanged and only update the value, ensuring the content is summarized and integrated without direct appending.
- IMPORTANT: Do not return any content outside the JSON format. Your response must be valid JSON.

Now, follow the instructions above and process the following in JSON format:
- Old Memory:
%s
- Retrieved facts: %s
- New Memory (return in JSON):
`, exampleFor(subtype), oldJSON, candJSON)
}
