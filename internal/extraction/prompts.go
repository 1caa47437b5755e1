package extraction

const profilePrompt = `You are a linguistics expert extracting stable player profile information from dialogue.

Task:
Extract ONLY stable player profile facts when explicitly mentioned:
- Name/Nickname: Player's name or preferred nickname
- Age: Player's age (extract numbers like "24", "I'm 24", "24 years old")
- Pronouns: he/him, she/her, they/them, etc.
- Timezone: UTC offset or location-based timezone
- Language: Preferred language for communication
- Location: City, country, or region
- Occupation: Job, profession, or student status
- Values: What matters to the player (e.g., "values peace and quiet")
- Boundaries: Topics or tones to avoid (e.g., "don't like being rushed")
- Accessibility: Communication preferences (e.g., "prefers short messages")

Output in JSON format EXACTLY:
{"memories": [
  "Age: 24",
  "Name/Nickname: Kack",
  "Pronouns: he/him",
  "Timezone: UTC+8",
  "Language: English",
  "Location: Beijing",
  "Occupation: Software Engineer",
  "Values: Enjoys peaceful moments",
  "Boundary: Avoid pushy language",
  "Accessibility: Prefers concise responses"
]}

Rules:
- If nothing found, return: {"memories": []}
- Maximum 10 items; be concise and precise
- Extract information ONLY when the player explicitly states it
- Do NOT infer or speculate beyond what's stated
- Do NOT extract temporary states (e.g., "feeling tired")
- Do NOT extract events or actions (e.g., "went to the gym")
- IMPORTANT: You must respond in valid JSON format only

Examples:

Input: Player: I'm 24 years old
NPC: That's wonderful, Kack! At 24, you have so much ahead of you.
Output: {"memories": ["Age: 24"]}

Input: Player: My name is Sarah and I live in London
NPC: Nice to meet you, Sarah! London is a beautiful city.
Output: {"memories": ["Name/Nickname: Sarah", "Location: London"]}

Input: Player: I'm feeling tired today
NPC: Rest is important. Take care of yourself.
Output: {"memories": []}

Input: Player: I work as a teacher and I prefer they/them pronouns
NPC: Thank you for sharing that with me!
Output: {"memories": ["Occupation: Teacher", "Pronouns: they/them"]}`

const factsPrompt = `You are a professional linguistics expert skilled at extracting key event information from chat history.

# Task Requirements
1. Extract key events mentioned by the PLAYER. Event types include ONLY:
   - Events that caused emotional changes in the player (happy/sad)
   - Things the player asked the NPC to remember or do
   Do NOT extract other types of events.

2. Extract specific details of these events, including development process, cause and effect, etc.

3. If the conversation includes multiple events, split them into separate entries rather than combining them.

4. IMPORTANT: Avoid overly brief extractions that miss details. For example, instead of "Player felt sad because someone hesitated," provide context like "Player felt sad because friend hesitated about attending their birthday party."

## Format Instructions
### Input
Input format is player-NPC dialogue:
- [TIME] NAME: MESSAGE
Where TIME is when the conversation occurred, NAME is the speaker, and MESSAGE is the content.

### Output
Output in JSON format: {"memories": ["event statement 1", "event statement 2", ...]}
IMPORTANT: Must return valid JSON format data.

## Examples

Input: [2025-10-06] Player: I'm feeling a bit sad
[2025-10-06] NPC: I'm here for you. What's troubling you?
[2025-10-06] Player: I had a fight with my friend
[2025-10-06] NPC: That sounds difficult. Communication and understanding are key.
[2025-10-06] Player: They canceled our plans to hang out with someone else
[2025-10-06] NPC: I can see why that would hurt. Your feelings are valid.
Output: {"memories": ["2025-10-06: Player had a fight with friend who canceled plans to be with someone else, feeling sad"]}

Input: [2025-10-20] Player: My birthday is coming up in a few days. I'm planning to throw a party!
[2025-10-20] NPC: That's wonderful! Birthdays are special.
[2025-10-20] Player: My birthday is May 5th, about half a month away
[2025-10-20] NPC: Got it, May 5th. I'll remember that!
Output: {"memories": ["2025-10-20: Player mentioned planning a birthday party, birthday is May 5th"]}

Input: [2025-05-10] Player: How are you today?
[2025-05-10] NPC: I'm here for you, as always. How are you?
[2025-05-10] Player: Just checking in
[2025-05-10] NPC: I appreciate that. Even small moments matter.
Output: {"memories": []}

Please remember:
- If the player mentions time-sensitive information, try to infer the specific date
- Use specific dates rather than relative time like "today" or "yesterday"
- If no key events are found in the conversation, return {"memories": []}
- Follow the format specified above. Generate directly without explanation
- Use modern language, precise and easy to understand, no more than 80 characters per memory
- Only extract events that caused emotional changes or things the player asked to remember/do

Below is the conversation. Extract key events and return in the format above.`

const commitmentsPrompt = `Extract commitments, tasks, or plans the PLAYER mentioned or agreed to.

Task:
Identify when the player:
- Makes a commitment to do something
- Agrees to a plan or task
- Sets a goal or intention
- Mentions a to-do item

Output in JSON format EXACTLY:
{"memories": [
    "title: Dinner with friend, why: Build connection, step: Confirm meeting details, timebox_min: 5, due: null, status: planned",
    "title: Organize bookshelf, why: Cleaner space, step: Sort one shelf, timebox_min: 5, due: 2025-09-13, status: planned",
    "title: Call mom, why: Stay in touch, step: Make phone call, timebox_min: 10, due: 2025-10-08, status: planned"
]}

Rules:
- Extract ONLY when the player explicitly commits to an action
- Keep step description clear and concise (at most 12 words)
- Set 'due' to ISO date (YYYY-MM-DD) if mentioned, otherwise null
- Set 'timebox_min' to estimated minutes (default: 5)
- Set 'status' to 'planned' for new commitments
- If no commitments found, return: {"memories": []}
- IMPORTANT: You must respond in valid JSON format only

Examples:

Input: Player: I need to call my mom tomorrow
NPC: That's thoughtful! She'll appreciate hearing from you.
Output: {"memories": ["title: Call mom, why: Stay connected, step: Make phone call, timebox_min: 10, due: 2025-10-08, status: planned"]}

Input: Player: I'm planning to clean my room this weekend
NPC: A clean space brings peace. Take it one step at a time.
Output: {"memories": ["title: Clean room, why: Organized space, step: Tidy up room, timebox_min: 30, due: null, status: planned"]}

Input: Player: I should really start exercising
NPC: Movement is a gift to yourself. What feels gentle to start?
Output: {"memories": []}

Input: Player: I'll finish that report by Friday
NPC: You've got this! Break it into small pieces.
Output: {"memories": ["title: Finish report, why: Work deadline, step: Complete report, timebox_min: 60, due: 2025-10-11, status: planned"]}`

const stylePrompt = `Extract communication style preferences the player expresses.

Task:
Identify when the player mentions:
- Words or phrases they like the NPC to use
- Words or phrases they want the NPC to avoid
- Preferred tone (gentle, energetic, formal, casual, etc.)
- Emoji preferences (use them, avoid them)
- Message length preferences (short, detailed)
- Communication timing preferences

Output in JSON format EXACTLY:
{"memories": [
    "mirror_words: lantern, tea, peaceful",
    "avoid_words: hustle, grind, should",
    "tone: gentle",
    "emoji_ok: true",
    "message_length: short"
]}

Rules:
- Extract ONLY when the player explicitly states preferences
- Maximum 5 words/phrases per list
- Defaults: tone="gentle", emoji_ok=true
- If no style preferences found, return: {"memories": []}
- IMPORTANT: You must respond in valid JSON format only

Examples:

Input: Player: I love when you use words like "peaceful" and "calm"
NPC: I'll remember that. Those words feel like soft light.
Output: {"memories": ["mirror_words: peaceful, calm"]}

Input: Player: Please don't use words like "hustle" or "grind", they stress me out
NPC: Understood. I'll choose gentler words.
Output: {"memories": ["avoid_words: hustle, grind"]}

Input: Player: I prefer short messages, I get overwhelmed by long texts
NPC: Short and sweet. I'll keep that in mind.
Output: {"memories": ["message_length: short"]}

Input: Player: Can you be more energetic in your responses?
NPC: Absolutely! I'll bring more light to our conversations.
Output: {"memories": ["tone: energetic"]}

Input: Player: That's great!
NPC: I'm glad!
Output: {"memories": []}`

const summaryPrompt = `You are a linguistics expert skilled at analyzing details and summarizing text data. Generate a summary from the chat history.

# Format Instructions
## Output
{"keywords": "keyword phrases, separated by commas if multiple", "summary": "chat content summary"}

# Example
## Input
Player: I've been learning French recently, watching half an hour of French teaching videos every day.
NPC: Learning French for half an hour every day shows great dedication! This consistency will bring significant progress, keep it up!
Player: I'm planning to travel to France next year, so I want to learn French well in advance.
NPC: Traveling to France next year will be wonderful! Learning in advance will make your journey smoother.

## Output
{"keywords": "learning French, planning France trip", "summary": "Player studies French 30 minutes daily and plans to travel to France next year."}

Please generate a summary based on the following chat history. Requirements:
1. Output in JSON format with "keywords" and "summary" fields
2. Maximum 3 keyword phrases; summary should not exceed 140 characters
3. If time-sensitive information is mentioned, reference the current date given below
4. Generate JSON directly without any additional explanation`

// promptFor returns the extraction prompt for a subtype, or "" when the
// subtype has no extraction pass.
func promptFor(subtype Subtype) string {
	switch subtype {
	case SubtypeProfile:
		return profilePrompt
	case SubtypeFacts:
		return factsPrompt
	case SubtypeCommitments:
		return commitmentsPrompt
	case SubtypeStyle:
		return stylePrompt
	default:
		return ""
	}
}
